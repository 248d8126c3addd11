package gitproto

// CommandKind classifies a single parsed ref-update or want/have line.
type CommandKind string

const (
	Create CommandKind = "create"
	Update CommandKind = "update"
	Delete CommandKind = "delete"
	Want   CommandKind = "want"
	Have   CommandKind = "have"
)

var zeroCommit = "0000000000000000000000000000000000000000"

// Command is one parsed receive-pack ref update or upload-pack
// want/have line, per spec.md §3.
type Command struct {
	Kind CommandKind

	// receive-pack fields
	OldCommit string
	NewCommit string
	Reference string

	// upload-pack fields
	Commit string
}

// NewReceivePackCommand classifies a ref-update triple into a Command
// per spec.md §3: create iff oldCommit is all zeros, delete iff
// newCommit is all zeros, update otherwise.
func NewReceivePackCommand(oldCommit, newCommit, reference string) Command {
	kind := Update
	switch {
	case oldCommit == zeroCommit:
		kind = Create
	case newCommit == zeroCommit:
		kind = Delete
	}
	return Command{Kind: kind, OldCommit: oldCommit, NewCommit: newCommit, Reference: reference}
}

// NewUploadPackCommand builds a want/have Command.
func NewUploadPackCommand(kind CommandKind, commit string) Command {
	return Command{Kind: kind, Commit: commit}
}

// Capabilities is an ordered mapping from capability name to an
// optional value, per spec.md §3. Iteration order is preserved via
// Names; Value reports whether a name was present and what value (if
// any) it carried.
type Capabilities struct {
	names  []string
	values map[string]string
	has    map[string]bool
}

// NewCapabilities returns an empty Capabilities map.
func NewCapabilities() *Capabilities {
	return &Capabilities{values: map[string]string{}, has: map[string]bool{}}
}

// Set records capability name, optionally with a value. "foo" yields
// name->"" with a present-no-value marker; "foo=bar" yields name->"bar".
func (c *Capabilities) Set(name, value string, hasValue bool) {
	if !c.has[name] {
		c.names = append(c.names, name)
	}
	c.has[name] = true
	if hasValue {
		c.values[name] = value
	}
}

// Value returns the capability's value (possibly "") and whether it
// was present at all.
func (c *Capabilities) Value(name string) (string, bool) {
	if !c.has[name] {
		return "", false
	}
	return c.values[name], true
}

// Names returns capability names in first-seen order.
func (c *Capabilities) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len reports how many distinct capabilities were recorded.
func (c *Capabilities) Len() int { return len(c.names) }

// Clone returns a defensive deep copy, per spec.md §4.4's "capabilities()
// ... return defensive copies".
func (c *Capabilities) Clone() *Capabilities {
	out := NewCapabilities()
	for _, n := range c.names {
		v, hasV := c.values[n]
		out.Set(n, v, hasV)
	}
	return out
}

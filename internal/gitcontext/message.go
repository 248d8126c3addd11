package gitcontext

// messageKind distinguishes an informational sideband message from an
// error one, per spec.md §4.4.
type messageKind int

const (
	messageInfo messageKind = iota
	messageError
)

type message struct {
	kind messageKind
	text string
}

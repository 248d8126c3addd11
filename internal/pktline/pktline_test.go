package pktline

import (
	"bytes"
	"testing"

	"github.com/crohr/smart-git-proxy/internal/gerrors"
)

func TestEncodePacket(t *testing.T) {
	cases := []struct {
		name string
		typ  FrameType
		msg  string
		want string
	}{
		{"data has no channel byte", Data, "hello\n", "000ahello\n"},
		{"message gets progress channel and trailing newline", Message, "building", "000e\x02building\n"},
		{"error gets error channel", ErrorMessage, "boom\n", "000a\x03boom\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := EncodePacket(c.typ, c.msg)
			if !bytes.Equal(got, []byte(c.want)) {
				t.Fatalf("got %q want %q", got, c.want)
			}
		})
	}
}

func TestReadPacketLength(t *testing.T) {
	if n := ReadPacketLength([]byte("0000"), 0); n != 0 {
		t.Fatalf("flush length: got %d want 0", n)
	}
	if n := ReadPacketLength([]byte("001e..."), 0); n != 0x1e {
		t.Fatalf("got %d want 0x1e", n)
	}
	if n := ReadPacketLength([]byte("00"), 0); n != -1 {
		t.Fatalf("short buffer should yield -1, got %d", n)
	}
	if n := ReadPacketLength([]byte("zzzz"), 0); n != -1 {
		t.Fatalf("non-hex header should yield -1, got %d", n)
	}
}

func TestIteratePacketsStopsOnFlush(t *testing.T) {
	buf := append(framify([]byte("want abc\n")), Flush()...)
	buf = append(buf, []byte("trailing")...)

	res, err := IteratePackets(buf, true, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(res.Frames))
	}
	if !res.FlushFound {
		t.Fatalf("expected FlushFound")
	}
	if string(res.Remainder) != "trailing" {
		t.Fatalf("unexpected remainder: %q", res.Remainder)
	}
}

func TestIteratePacketsInvalidLength(t *testing.T) {
	_, err := IteratePackets([]byte("0001"), false, false)
	if !gerrors.Is(err, gerrors.KindInvalidPacket) {
		t.Fatalf("expected KindInvalidPacket, got %v", err)
	}
}

func TestIteratePacketsTruncationTolerance(t *testing.T) {
	full := framify([]byte("want abc\n"))
	truncated := full[:len(full)-2]

	res, err := IteratePackets(truncated, true, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Frames) != 0 {
		t.Fatalf("expected no complete frames, got %d", len(res.Frames))
	}
	if !bytes.Equal(res.Remainder, truncated) {
		t.Fatalf("expected whole truncated frame as remainder")
	}

	_, err = IteratePackets(truncated, true, false)
	if !gerrors.Is(err, gerrors.KindInvalidPacket) {
		t.Fatalf("expected KindInvalidPacket without tolerance, got %v", err)
	}
}

package busybus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHeaderEncodeExactBytes(t *testing.T) {
	h := Header{
		Magic:   Magic,
		MsgType: MsgCLICALL,
		SOType:  SONone,
		ErrCode: EGood,
		Token:   0x11223344,
		PSize:   9,
		Flags:   HasMeta,
	}
	want := []byte{0xBB, 0xC5, 0x07, 0x00, 0x00, 0x11, 0x22, 0x33, 0x44, 0x00, 0x09, 0x01}

	got := make([]byte, HeaderSize)
	if n := h.Encode(got); n != HeaderSize {
		t.Fatalf("Encode returned %d, want %d", n, HeaderSize)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Encode mismatch (-want +got):\n%s", diff)
	}

	var back Header
	back.Decode(got)
	if diff := cmp.Diff(h, back); diff != "" {
		t.Fatalf("Decode round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderSetPSizeCaps(t *testing.T) {
	cases := map[string]struct {
		size int
		want uint16
	}{
		"zero":        {0, 0},
		"typical":     {9, 9},
		"exact max":   {0xFFFF, 0xFFFF},
		"over max":    {0xFFFF + 1, 0xFFFF},
		"far over":    {1 << 20, 0xFFFF},
	}
	for name, c := range cases {
		var h Header
		h.SetPSize(c.size)
		if h.PSize != c.want {
			t.Errorf("%s: SetPSize(%d) = %d, want %d", name, c.size, h.PSize, c.want)
		}
	}
}

func TestHeaderHasFlag(t *testing.T) {
	h := Header{Flags: HasMeta}
	if !h.HasFlag(HasMeta) {
		t.Error("HasFlag(HasMeta) = false, want true")
	}
	if h.HasFlag(HasObject) {
		t.Error("HasFlag(HasObject) = true, want false")
	}
}

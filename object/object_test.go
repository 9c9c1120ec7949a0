package object

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	o := New()
	if err := o.InsInt32(-42); err != nil {
		t.Fatal(err)
	}
	if err := o.InsUint32(7); err != nil {
		t.Fatal(err)
	}
	if err := o.InsByte(0xAB); err != nil {
		t.Fatal(err)
	}
	if err := o.InsString("hello"); err != nil {
		t.Fatal(err)
	}

	o.Rewind()
	if v, err := o.ExtrInt32(); err != nil || v != -42 {
		t.Fatalf("ExtrInt32: got (%d, %v)", v, err)
	}
	if v, err := o.ExtrUint32(); err != nil || v != 7 {
		t.Fatalf("ExtrUint32: got (%d, %v)", v, err)
	}
	if v, err := o.ExtrByte(); err != nil || v != 0xAB {
		t.Fatalf("ExtrByte: got (%d, %v)", v, err)
	}
	if v, err := o.ExtrString(); err != nil || v != "hello" {
		t.Fatalf("ExtrString: got (%q, %v)", v, err)
	}
}

func TestFromBufRawDataRoundTrip(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5}
	o := FromBuf(raw)
	if got := o.RawData(); !cmp.Equal(got, raw) {
		t.Fatalf("RawData mismatch: %v vs %v", got, raw)
	}
	if o.RawSize() != len(raw) {
		t.Fatalf("RawSize = %d, want %d", o.RawSize(), len(raw))
	}
}

func TestExtrStringUnterminated(t *testing.T) {
	o := FromBuf([]byte("no-nul-here"))
	if _, err := o.ExtrString(); err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestInsStringRejectsEmbeddedNUL(t *testing.T) {
	o := New()
	if err := o.InsString("a\x00b"); err == nil {
		t.Fatal("expected error for embedded NUL")
	}
}

func TestExtrShortBuffer(t *testing.T) {
	o := FromBuf([]byte{1, 2})
	if _, err := o.ExtrUint32(); err == nil {
		t.Fatal("expected short-read error")
	}
}

func TestArrayRoundTrip(t *testing.T) {
	o := New()
	if err := o.InsArray(2); err != nil {
		t.Fatal(err)
	}
	if err := o.InsByte(0x01); err != nil {
		t.Fatal(err)
	}
	if err := o.InsByte(0x02); err != nil {
		t.Fatal(err)
	}
	o.Rewind()
	n, err := o.ExtrArray()
	if err != nil || n != 2 {
		t.Fatalf("ExtrArray: got (%d, %v)", n, err)
	}
}

func TestReset(t *testing.T) {
	o := New()
	o.InsByte(1)
	o.Reset()
	if o.RawSize() != 0 {
		t.Fatalf("RawSize after Reset = %d, want 0", o.RawSize())
	}
}

func TestDescrValid(t *testing.T) {
	cases := map[string]bool{
		"":          true,
		"iubs":      true,
		"Ai":        true,
		"A(is)":     true,
		"(is)":      true,
		"(i":        false,
		"()":        false,
		"A":         false,
		")":         false,
		"is)":       false,
		"(is)(ub)":  true,
	}
	for descr, want := range cases {
		if got := DescrValid(descr); got != want {
			t.Errorf("DescrValid(%q) = %v, want %v", descr, got, want)
		}
	}
}

func TestBuildParseRoundTrip(t *testing.T) {
	descr := "isA(ub)"
	values := []any{
		int32(-7),
		"hi",
		[]any{
			[]any{uint32(1), byte(0x10)},
			[]any{uint32(2), byte(0x20)},
		},
	}
	o, err := Build(descr, values)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := Parse(o, descr)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArityMismatch(t *testing.T) {
	if _, err := Build("is", []any{int32(1)}); err == nil {
		t.Fatal("expected arity mismatch error")
	}
}

func TestRepr(t *testing.T) {
	o, err := Build("isAb", []any{int32(1), "hello", []any{byte(0x01), byte(0x02)}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := Repr(o, "isAb")
	if err != nil {
		t.Fatalf("Repr: %v", err)
	}
	want := `(1, "hello", [0x01, 0x02])`
	if got != want {
		t.Fatalf("Repr = %q, want %q", got, want)
	}
}

func TestReprInvalidDescr(t *testing.T) {
	o := New()
	if _, err := Repr(o, "("); err == nil {
		t.Fatal("expected descr error")
	}
}

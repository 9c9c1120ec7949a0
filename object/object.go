// Package object implements the busybus typed-object codec: a small,
// self-describing binary encoding used for every CLICALL/SRVCALL/SRVREPLY
// payload. An Object is an append-only byte buffer of tagged scalars and
// arrays, plus a read cursor used for extraction.
//
// The wire shape of a value is driven by a description string built from
// the grammar:
//
//	descr := item*
//	item  := 'i' | 'u' | 'b' | 's' | 'A' item | '(' item+ ')'
//
// 'i' and 'u' are 32-bit integers in the host's native byte order (objects
// never cross a host boundary unparsed, so there is no wire requirement to
// pick a fixed endianness the way the surrounding message header does).
// 'b' is a single byte. 's' is a NUL-terminated string. "A x" is a
// length-prefixed (uint32) array of elements of shape x. "(...)" groups one
// or more items into a struct; grouping is purely structural and carries no
// tag of its own.
package object

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFormat is returned when a description does not match the data being
// built, or when a parse does not find a described type in the remaining
// bytes of the buffer.
var ErrFormat = errors.New("object: invalid format")

// ErrDescr is returned by Build, Parse and Repr when the description string
// itself does not satisfy the object grammar.
var ErrDescr = errors.New("object: invalid description")

// Object is a self-describing buffer of marshalled values together with a
// cursor used for sequential extraction. The zero value is an empty,
// ready-to-use object.
type Object struct {
	buf []byte
	off int // read cursor, used by the Extr* methods and Rewind
}

// New returns a new, empty object.
func New() *Object { return new(Object) }

// FromBuf constructs an object whose raw contents are an exact copy of buf.
// The cursor starts at the beginning. Round-tripping through RawData
// recovers buf bytewise.
func FromBuf(buf []byte) *Object {
	o := &Object{buf: make([]byte, len(buf))}
	copy(o.buf, buf)
	return o
}

// Reset discards the contents of o and resets the cursor, leaving o as if
// newly allocated.
func (o *Object) Reset() {
	o.buf = o.buf[:0]
	o.off = 0
}

// Rewind resets the read cursor to the start of the buffer, allowing the
// contents to be extracted again from the beginning.
func (o *Object) Rewind() { o.off = 0 }

// RawData returns the object's raw marshalled bytes. The caller must not
// modify the returned slice.
func (o *Object) RawData() []byte { return o.buf }

// RawSize reports the number of marshalled bytes currently held by o.
func (o *Object) RawSize() int { return len(o.buf) }

// InsInt32 appends a signed 32-bit integer to o.
func (o *Object) InsInt32(v int32) error {
	o.buf = binary.NativeEndian.AppendUint32(o.buf, uint32(v))
	return nil
}

// ExtrInt32 extracts the next signed 32-bit integer from o.
func (o *Object) ExtrInt32() (int32, error) {
	v, err := o.ExtrUint32()
	return int32(v), err
}

// InsUint32 appends an unsigned 32-bit integer to o.
func (o *Object) InsUint32(v uint32) error {
	o.buf = binary.NativeEndian.AppendUint32(o.buf, v)
	return nil
}

// ExtrUint32 extracts the next unsigned 32-bit integer from o.
func (o *Object) ExtrUint32() (uint32, error) {
	if len(o.buf)-o.off < 4 {
		return 0, fmt.Errorf("%w: short uint32 at offset %d", ErrFormat, o.off)
	}
	v := binary.NativeEndian.Uint32(o.buf[o.off:])
	o.off += 4
	return v, nil
}

// InsByte appends a single byte to o.
func (o *Object) InsByte(v byte) error {
	o.buf = append(o.buf, v)
	return nil
}

// ExtrByte extracts the next byte from o.
func (o *Object) ExtrByte() (byte, error) {
	if len(o.buf)-o.off < 1 {
		return 0, fmt.Errorf("%w: short byte at offset %d", ErrFormat, o.off)
	}
	v := o.buf[o.off]
	o.off++
	return v, nil
}

// InsString appends a NUL-terminated string to o. The string must not
// itself contain a NUL byte.
func (o *Object) InsString(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return fmt.Errorf("%w: string contains embedded NUL", ErrFormat)
		}
	}
	o.buf = append(o.buf, s...)
	o.buf = append(o.buf, 0)
	return nil
}

// ExtrString extracts the next NUL-terminated string from o.
func (o *Object) ExtrString() (string, error) {
	rest := o.buf[o.off:]
	nul := indexNUL(rest)
	if nul < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d", ErrFormat, o.off)
	}
	s := string(rest[:nul])
	o.off += nul + 1
	return s, nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// InsBytes appends the bytes of buf to o with no length prefix of its own;
// the caller is responsible for knowing how many bytes to extract later.
func (o *Object) InsBytes(buf []byte) error {
	o.buf = append(o.buf, buf...)
	return nil
}

// ExtrBytes extracts exactly size raw bytes from o.
func (o *Object) ExtrBytes(size int) ([]byte, error) {
	if size < 0 || len(o.buf)-o.off < size {
		return nil, fmt.Errorf("%w: short byte array at offset %d", ErrFormat, o.off)
	}
	v := make([]byte, size)
	copy(v, o.buf[o.off:o.off+size])
	o.off += size
	return v, nil
}

// InsArray appends an array-length header to o. The caller must follow it
// with exactly arrsize elements of the array's declared shape.
func (o *Object) InsArray(arrsize uint32) error { return o.InsUint32(arrsize) }

// ExtrArray extracts an array-length header from o.
func (o *Object) ExtrArray() (uint32, error) { return o.ExtrUint32() }

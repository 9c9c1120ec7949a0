package busybus

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bbgo/busybus/object"
)

// Frame is a fully-decoded wire message: a header plus the raw payload
// bytes it described. Meta and object bytes are sliced out of Payload
// lazily by ExtractMeta/ExtractObject rather than eagerly on receipt, the
// same split the wire format itself makes.
type Frame struct {
	Header  Header
	Payload []byte
}

// NewFrame builds a Frame from a header shape and optional meta/object,
// setting HasMeta/HasObject and PSize consistently with the payload it
// assembles.
func NewFrame(msgType MsgType, soType SOType, errCode ErrCode, token uint32, meta string, obj *object.Object) *Frame {
	var buf bytes.Buffer
	var flags Flag
	if meta != "" {
		buf.WriteString(meta)
		buf.WriteByte(0)
		flags |= HasMeta
	}
	if obj != nil {
		buf.Write(obj.RawData())
		flags |= HasObject
	}
	payload := buf.Bytes()
	if len(payload) > MaxPayload {
		// §3's invariant is payload size ≤ 4096 on both ends: larger
		// values are capped here rather than handed to WriteTo, which
		// would just produce a frame the peer's ReadFrame rejects anyway.
		payload = payload[:MaxPayload]
	}
	f := &Frame{
		Header: Header{
			Magic:   Magic,
			MsgType: msgType,
			SOType:  soType,
			ErrCode: errCode,
			Token:   token,
			Flags:   flags,
		},
		Payload: payload,
	}
	f.Header.SetPSize(len(f.Payload))
	return f
}

// ExtractMeta returns the NUL-terminated meta string at the head of the
// payload, iff HasMeta is set and a NUL byte occurs within psize bytes.
func (f *Frame) ExtractMeta() (string, bool) {
	if !f.Header.HasFlag(HasMeta) {
		return "", false
	}
	nul := bytes.IndexByte(f.Payload, 0)
	if nul < 0 {
		return "", false
	}
	return string(f.Payload[:nul]), true
}

// ExtractObject locates the start of the object bytes (immediately after
// the meta string, or at offset 0 if there is none) and constructs a fresh
// Object from the remainder of the payload. It fails if HasObject is not
// set.
func (f *Frame) ExtractObject() (*object.Object, bool) {
	if !f.Header.HasFlag(HasObject) {
		return nil, false
	}
	start := 0
	if f.Header.HasFlag(HasMeta) {
		nul := bytes.IndexByte(f.Payload, 0)
		if nul < 0 {
			return nil, false
		}
		start = nul + 1
	}
	return object.FromBuf(f.Payload[start:]), true
}

// WriteTo serializes f to w as a complete frame: header followed by
// payload.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	var hdr [HeaderSize]byte
	f.Header.Encode(hdr[:])
	n, err := w.Write(hdr[:])
	if err != nil {
		return int64(n), err
	}
	if len(f.Payload) == 0 {
		return int64(n), nil
	}
	m, err := w.Write(f.Payload)
	return int64(n + m), err
}

// ReadFrame reads one complete frame from r: a 12-byte header followed by
// exactly Header.PSize payload bytes. It validates the magic number and
// rejects payloads that exceed MaxPayload.
func ReadFrame(r io.Reader) (*Frame, error) {
	return ReadFrameLimit(r, MaxPayload)
}

// ReadFrameLimit is ReadFrame with the accepted-payload cap set to
// maxPayload instead of the package-wide MaxPayload, so a Router can
// enforce its own configured Config.MaxPayload on every session read.
func ReadFrameLimit(r io.Reader, maxPayload int) (*Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}
	f := &Frame{}
	f.Header.Decode(hdr[:])
	if f.Header.Magic != Magic {
		return nil, fmt.Errorf("%w: got %#04x", ErrBadMagic, f.Header.Magic)
	}
	if int(f.Header.PSize) > maxPayload {
		return nil, fmt.Errorf("%w: psize %d exceeds max payload", ErrInvalidObject, f.Header.PSize)
	}
	if f.Header.PSize > 0 {
		f.Payload = make([]byte, f.Header.PSize)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, ErrShortRecv
			}
			return nil, err
		}
	}
	return f, nil
}

package busybus

import "fmt"

// Magic is the fixed two-byte value that opens every frame.
const Magic uint16 = 0xBBC5

// HeaderSize is the exact on-wire size of a Header, regardless of native
// struct padding.
const HeaderSize = 12

// MaxPayload is the largest payload a single frame may carry.
const MaxPayload = 4096

// MsgType identifies the kind of a message.
type MsgType uint8

const (
	MsgNone     MsgType = 0
	MsgSO       MsgType = 1
	MsgSOOK     MsgType = 2
	MsgSORJCT   MsgType = 3
	MsgSRVREG   MsgType = 4
	MsgSRVUNREG MsgType = 5
	MsgSRVACK   MsgType = 6
	MsgCLICALL  MsgType = 7
	MsgCLIREPLY MsgType = 8
	MsgCLISIG   MsgType = 9
	MsgSRVCALL  MsgType = 10
	MsgSRVREPLY MsgType = 11
	MsgSRVSIG   MsgType = 12
	MsgCLOSE    MsgType = 13
	MsgCTRL     MsgType = 14
	MsgMON      MsgType = 15
)

func (t MsgType) String() string {
	switch t {
	case MsgNone:
		return "NONE"
	case MsgSO:
		return "SO"
	case MsgSOOK:
		return "SOOK"
	case MsgSORJCT:
		return "SORJCT"
	case MsgSRVREG:
		return "SRVREG"
	case MsgSRVUNREG:
		return "SRVUNREG"
	case MsgSRVACK:
		return "SRVACK"
	case MsgCLICALL:
		return "CLICALL"
	case MsgCLIREPLY:
		return "CLIREPLY"
	case MsgCLISIG:
		return "CLISIG"
	case MsgSRVCALL:
		return "SRVCALL"
	case MsgSRVREPLY:
		return "SRVREPLY"
	case MsgSRVSIG:
		return "SRVSIG"
	case MsgCLOSE:
		return "CLOSE"
	case MsgCTRL:
		return "CTRL"
	case MsgMON:
		return "MON"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// SOType identifies the role a client declares in its SO handshake.
type SOType uint8

const (
	SONone     SOType = 0
	SOCaller   SOType = 1
	SOProvider SOType = 2
	SOMonitor  SOType = 3
	SOControl  SOType = 4
)

func (t SOType) String() string {
	switch t {
	case SONone:
		return "none"
	case SOCaller:
		return "caller"
	case SOProvider:
		return "provider"
	case SOMonitor:
		return "monitor"
	case SOControl:
		return "control"
	default:
		return fmt.Sprintf("SOType(%d)", uint8(t))
	}
}

// ErrCode is the wire-level result code carried by CLIREPLY/SRVACK frames.
type ErrCode uint8

const (
	EGood       ErrCode = 0
	ENoMethod   ErrCode = 1
	EMethodErr  ErrCode = 2
	EMRegErr    ErrCode = 3
)

func (c ErrCode) String() string {
	switch c {
	case EGood:
		return "GOOD"
	case ENoMethod:
		return "NOMETHOD"
	case EMethodErr:
		return "METHODERR"
	case EMRegErr:
		return "MREGERR"
	default:
		return fmt.Sprintf("ErrCode(%d)", uint8(c))
	}
}

// Flag is a bitmask of optional payload components.
type Flag uint8

const (
	HasMeta   Flag = 0x01
	HasObject Flag = 0x02
)

// Header is the fixed 12-byte frame header. Field order and sizes match
// the wire layout exactly; Go struct padding never leaks onto the wire
// because Header is always (de)serialized through Encode/Decode rather
// than via unsafe casts.
type Header struct {
	Magic   uint16
	MsgType MsgType
	SOType  SOType
	ErrCode ErrCode
	Token   uint32
	PSize   uint16
	Flags   Flag
}

// SetPSize caps size at the maximum representable psize (UINT16_MAX) and
// assigns it to h.PSize.
func (h *Header) SetPSize(size int) {
	if size > 0xFFFF {
		size = 0xFFFF
	}
	h.PSize = uint16(size)
}

// HasFlag reports whether f is set in h.Flags.
func (h *Header) HasFlag(f Flag) bool { return h.Flags&f != 0 }

// Encode writes h's 12-byte wire representation into buf, which must be at
// least HeaderSize bytes long. It returns the number of bytes written.
func (h *Header) Encode(buf []byte) int {
	buf[0] = byte(h.Magic >> 8)
	buf[1] = byte(h.Magic)
	buf[2] = byte(h.MsgType)
	buf[3] = byte(h.SOType)
	buf[4] = byte(h.ErrCode)
	buf[5] = byte(h.Token >> 24)
	buf[6] = byte(h.Token >> 16)
	buf[7] = byte(h.Token >> 8)
	buf[8] = byte(h.Token)
	buf[9] = byte(h.PSize >> 8)
	buf[10] = byte(h.PSize)
	buf[11] = byte(h.Flags)
	return HeaderSize
}

// Decode parses a 12-byte wire header from buf, which must be at least
// HeaderSize bytes long.
func (h *Header) Decode(buf []byte) {
	h.Magic = uint16(buf[0])<<8 | uint16(buf[1])
	h.MsgType = MsgType(buf[2])
	h.SOType = SOType(buf[3])
	h.ErrCode = ErrCode(buf[4])
	h.Token = uint32(buf[5])<<24 | uint32(buf[6])<<16 | uint32(buf[7])<<8 | uint32(buf[8])
	h.PSize = uint16(buf[9])<<8 | uint16(buf[10])
	h.Flags = Flag(buf[11])
}

// Package client implements the caller- and provider-side client
// libraries for the busybus protocol: connecting, issuing calls,
// publishing methods, and servicing inbound calls, mirroring the shape
// of bbus_client_connect/bbus_call_method and
// bbus_service_connect/bbus_register_method/bbus_listen_method_calls
// from the original C client library, adapted to idiomatic Go
// (T, error) returns instead of NULL-on-error and a thread-local errno.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bbgo/busybus"
	"github.com/bbgo/busybus/object"
	"github.com/bbgo/busybus/transport"
)

// Caller is a connection opened in the caller role. Its zero value is not
// usable; construct one with Dial.
type Caller struct {
	conn  *transport.Conn
	token uint32

	mu sync.Mutex // serializes Call, mirroring the one-call-at-a-time client contract
}

// Dial connects to the busybus router listening at sockPath and performs
// the caller session-open handshake.
func Dial(sockPath string) (*Caller, error) {
	conn, err := transport.Connect(sockPath)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	token, err := openSession(conn, busybus.SOCaller, "")
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Caller{conn: conn, token: token}, nil
}

// Call issues a method call to path with arg and blocks for the reply.
// arg may be nil for a method that takes no argument. The returned error
// wraps [busybus.ErrNoMethod] or [busybus.ErrMethodError] when the router
// or provider reports a protocol-level failure, distinguishable with
// errors.Is.
func (c *Caller) Call(path string, arg *object.Object) (*object.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := busybus.NewFrame(busybus.MsgCLICALL, busybus.SONone, busybus.EGood, c.token, path, arg)
	if _, err := req.WriteTo(c.conn); err != nil {
		return nil, fmt.Errorf("client: send CLICALL: %w", err)
	}
	rsp, err := busybus.ReadFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("client: read CLIREPLY: %w", err)
	}
	if rsp.Header.MsgType != busybus.MsgCLIREPLY {
		return nil, fmt.Errorf("client: %w: got %v", busybus.ErrInvalidMsgType, rsp.Header.MsgType)
	}
	switch rsp.Header.ErrCode {
	case busybus.EGood:
		ret, _ := rsp.ExtractObject()
		return ret, nil
	case busybus.ENoMethod:
		return nil, fmt.Errorf("client: %q: %w", path, busybus.ErrNoMethod)
	default:
		return nil, fmt.Errorf("client: %q: %w", path, busybus.ErrMethodError)
	}
}

// Close sends CLOSE and releases the connection.
func (c *Caller) Close() error {
	sendClose(c.conn)
	return c.conn.Close()
}

// MethodFunc implements one published method. leaf is the method's own
// (unqualified) name, as registered; it is provided so one func value can
// back several registrations.
type MethodFunc func(leaf string, arg *object.Object) (*object.Object, error)

// Provider is a connection opened in the provider role, publishing
// methods under a single service path and servicing inbound SRVCALLs.
// Its zero value is not usable; construct one with DialProvider.
type Provider struct {
	conn        *transport.Conn
	servicePath string

	mu      sync.Mutex
	methods map[string]MethodFunc
}

// DialProvider connects to the busybus router listening at sockPath,
// opens a provider session, and prepares to publish methods under
// servicePath (the dotted path segment between "bbus." and the method
// name).
func DialProvider(sockPath, servicePath string) (*Provider, error) {
	conn, err := transport.Connect(sockPath)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	if _, err := openSession(conn, busybus.SOProvider, servicePath); err != nil {
		conn.Close()
		return nil, err
	}
	return &Provider{conn: conn, servicePath: servicePath, methods: make(map[string]MethodFunc)}, nil
}

// Register publishes methodName with the given argument/result type
// descriptors and blocks for the router's SRVACK.
func (p *Provider) Register(methodName, argDescr, retDescr string, fn MethodFunc) error {
	meta := fmt.Sprintf("%s,%s,%s,%s", p.servicePath, methodName, argDescr, retDescr)
	req := busybus.NewFrame(busybus.MsgSRVREG, busybus.SONone, busybus.EGood, 0, meta, nil)
	if _, err := req.WriteTo(p.conn); err != nil {
		return fmt.Errorf("client: send SRVREG: %w", err)
	}
	rsp, err := busybus.ReadFrame(p.conn)
	if err != nil {
		return fmt.Errorf("client: read SRVACK: %w", err)
	}
	if rsp.Header.MsgType != busybus.MsgSRVACK {
		return fmt.Errorf("client: %w: got %v", busybus.ErrInvalidMsgType, rsp.Header.MsgType)
	}
	if rsp.Header.ErrCode != busybus.EGood {
		return fmt.Errorf("client: registering %q: %w", methodName, busybus.ErrRegError)
	}

	p.mu.Lock()
	p.methods[methodName] = fn
	p.mu.Unlock()
	return nil
}

// Unregister withdraws a previously registered method.
func (p *Provider) Unregister(methodName string) error {
	meta := fmt.Sprintf("%s,%s", p.servicePath, methodName)
	req := busybus.NewFrame(busybus.MsgSRVUNREG, busybus.SONone, busybus.EGood, 0, meta, nil)
	if _, err := req.WriteTo(p.conn); err != nil {
		return fmt.Errorf("client: send SRVUNREG: %w", err)
	}
	rsp, err := busybus.ReadFrame(p.conn)
	if err != nil {
		return fmt.Errorf("client: read SRVACK: %w", err)
	}
	if rsp.Header.ErrCode != busybus.EGood {
		return fmt.Errorf("client: unregistering %q: %w", methodName, busybus.ErrRegError)
	}

	p.mu.Lock()
	delete(p.methods, methodName)
	p.mu.Unlock()
	return nil
}

// Serve reads and dispatches inbound SRVCALLs until ctx is canceled or a
// transport error occurs, mirroring bbus_listen_method_calls's role but
// as a blocking loop rather than a single poll-and-return call.
func (p *Provider) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		f, err := busybus.ReadFrame(p.conn)
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("client: read: %w", err)
		}
		if f.Header.MsgType != busybus.MsgSRVCALL {
			continue
		}
		p.dispatch(f)
	}
}

func (p *Provider) dispatch(f *busybus.Frame) {
	leaf, _ := f.ExtractMeta()
	arg, ok := f.ExtractObject()
	if !ok {
		arg = object.New()
	}

	p.mu.Lock()
	fn, ok := p.methods[leaf]
	p.mu.Unlock()

	var reply *busybus.Frame
	if !ok {
		reply = busybus.NewFrame(busybus.MsgSRVREPLY, busybus.SONone, busybus.ENoMethod, f.Header.Token, "", nil)
	} else {
		ret, err := callMethod(fn, leaf, arg)
		if err != nil {
			reply = busybus.NewFrame(busybus.MsgSRVREPLY, busybus.SONone, busybus.EMethodErr, f.Header.Token, "", nil)
		} else {
			reply = busybus.NewFrame(busybus.MsgSRVREPLY, busybus.SONone, busybus.EGood, f.Header.Token, "", ret)
		}
	}
	reply.WriteTo(p.conn)
}

// callMethod invokes fn and recovers any panic, so one badly-behaved
// registered method can't take the whole Serve loop down with it.
func callMethod(fn MethodFunc, leaf string, arg *object.Object) (ret *object.Object, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(leaf, arg)
}

// Close sends CLOSE and releases the connection.
func (p *Provider) Close() error {
	sendClose(p.conn)
	return p.conn.Close()
}

func openSession(conn *transport.Conn, soType busybus.SOType, name string) (uint32, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	so := busybus.NewFrame(busybus.MsgSO, soType, busybus.EGood, 0, name, nil)
	if _, err := so.WriteTo(conn); err != nil {
		return 0, fmt.Errorf("client: send SO: %w", err)
	}
	rsp, err := busybus.ReadFrame(conn)
	if err != nil {
		return 0, fmt.Errorf("client: read SO reply: %w", err)
	}
	if rsp.Header.MsgType != busybus.MsgSOOK {
		reason, _ := rsp.ExtractMeta()
		return 0, fmt.Errorf("client: %w: %s", busybus.ErrSessionRejected, reason)
	}
	return rsp.Header.Token, nil
}

func sendClose(conn *transport.Conn) {
	f := busybus.NewFrame(busybus.MsgCLOSE, busybus.SONone, busybus.EGood, 0, "", nil)
	f.WriteTo(conn)
}

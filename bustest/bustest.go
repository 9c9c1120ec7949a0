// Package bustest provides support code for starting a [busybus.Router]
// against a temporary socket and driving it as a raw client, for use in
// end-to-end tests of the router and its dispatch logic.
package bustest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/bbgo/busybus"
	"github.com/bbgo/busybus/object"
	"github.com/bbgo/busybus/registry"
	"github.com/bbgo/busybus/transport"
)

// Server is a running router bound to a temporary socket, along with the
// means to stop it and clean up.
type Server struct {
	Router   *busybus.Router
	Registry *registry.Registry
	SockPath string

	tasks *taskgroup.Group
}

// Start constructs a registry, builds a Router around it with a short
// poll timeout suitable for tests, and runs Serve under a task group. It
// registers a cleanup with t that shuts the router down and waits for the
// group to drain.
func Start(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "bustest.sock")

	reg := registry.New()
	cfg := busybus.NewConfig()
	cfg.SockPath = sockPath
	cfg.PollTimeout = 20 * time.Millisecond
	r := busybus.NewRouter(cfg, reg)

	srv := &Server{Router: r, Registry: reg, SockPath: sockPath, tasks: taskgroup.New(nil)}
	srv.tasks.Go(r.Serve)

	// Wait for the socket to appear before returning, so callers can dial
	// immediately.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(sockPath); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	t.Cleanup(func() {
		r.Shutdown()
		done := make(chan error, 1)
		go func() { done <- srv.tasks.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not exit after Shutdown")
		}
	})
	return srv
}

// Client is a hand-driven connection to a Server, used to exercise the
// wire protocol directly without going through a real client library.
type Client struct {
	t     *testing.T
	conn  *transport.Conn
	token uint32
}

// Dial opens a new connection to srv and performs the SO/SOOK handshake
// for the given session type and name, failing the test on any error.
func (srv *Server) Dial(t *testing.T, soType busybus.SOType, name string) *Client {
	t.Helper()
	conn, err := transport.Connect(srv.SockPath)
	if err != nil {
		t.Fatalf("bustest: connect: %v", err)
	}
	c := &Client{t: t, conn: conn}
	t.Cleanup(func() { conn.Close() })

	so := busybus.NewFrame(busybus.MsgSO, soType, busybus.EGood, 0, name, nil)
	if _, err := so.WriteTo(conn); err != nil {
		t.Fatalf("bustest: send SO: %v", err)
	}
	rsp, err := busybus.ReadFrame(conn)
	if err != nil {
		t.Fatalf("bustest: read SO reply: %v", err)
	}
	if rsp.Header.MsgType != busybus.MsgSOOK {
		meta, _ := rsp.ExtractMeta()
		t.Fatalf("bustest: session rejected: %s", meta)
	}
	c.token = rsp.Header.Token
	return c
}

// Token is the session's assigned correlation token, valid for caller
// sessions.
func (c *Client) Token() uint32 { return c.token }

// Call sends a CLICALL for path with arg and blocks for the CLIREPLY,
// returning its error code and result object.
func (c *Client) Call(path string, arg *object.Object) (busybus.ErrCode, *object.Object, error) {
	c.t.Helper()
	req := busybus.NewFrame(busybus.MsgCLICALL, busybus.SONone, busybus.EGood, c.token, path, arg)
	if _, err := req.WriteTo(c.conn); err != nil {
		return 0, nil, fmt.Errorf("send CLICALL: %w", err)
	}
	rsp, err := busybus.ReadFrame(c.conn)
	if err != nil {
		return 0, nil, fmt.Errorf("read CLIREPLY: %w", err)
	}
	ret, _ := rsp.ExtractObject()
	return rsp.Header.ErrCode, ret, nil
}

// Send writes an arbitrary frame to the connection, for tests that need
// to drive the protocol outside the Call/Register convenience wrappers.
func (c *Client) Send(f *busybus.Frame) error {
	_, err := f.WriteTo(c.conn)
	return err
}

// Recv reads the next frame from the connection, bounded by a generous
// fixed deadline so a protocol bug surfaces as a test failure instead of
// an indefinite hang.
func (c *Client) Recv() (*busybus.Frame, error) {
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})
	return busybus.ReadFrame(c.conn)
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Register sends SRVREG for servicePath/methodName and waits for SRVACK,
// failing the test if the registration was rejected.
func (c *Client) Register(t *testing.T, servicePath, methodName, argDescr, retDescr string) {
	t.Helper()
	meta := fmt.Sprintf("%s,%s,%s,%s", servicePath, methodName, argDescr, retDescr)
	req := busybus.NewFrame(busybus.MsgSRVREG, busybus.SONone, busybus.EGood, 0, meta, nil)
	if _, err := req.WriteTo(c.conn); err != nil {
		t.Fatalf("bustest: send SRVREG: %v", err)
	}
	rsp, err := busybus.ReadFrame(c.conn)
	if err != nil {
		t.Fatalf("bustest: read SRVACK: %v", err)
	}
	if rsp.Header.ErrCode != busybus.EGood {
		t.Fatalf("bustest: SRVREG rejected: %v", rsp.Header.ErrCode)
	}
}

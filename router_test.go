package busybus_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"

	"github.com/bbgo/busybus"
	"github.com/bbgo/busybus/bustest"
	"github.com/bbgo/busybus/object"
	"github.com/bbgo/busybus/registry"
	"github.com/bbgo/busybus/transport"
)

// TestBadMagicClosesOnlyThatConnection covers the end-to-end case where one
// session sends a frame with a corrupt magic number: the router must close
// that session alone, leaving every other session free to keep calling.
func TestBadMagicClosesOnlyThatConnection(t *testing.T) {
	srv := bustest.Start(t)
	if err := srv.Registry.InsertLocal("bbus.echo.echo", func(arg *object.Object) (*object.Object, error) {
		return arg, nil
	}); err != nil {
		t.Fatalf("InsertLocal: %v", err)
	}

	good := srv.Dial(t, busybus.SOCaller, "good")
	bad := srv.Dial(t, busybus.SOCaller, "bad")

	var badHdr [busybus.HeaderSize]byte
	corrupt := busybus.Header{Magic: 0xDEAD, MsgType: busybus.MsgCLICALL}
	corrupt.Encode(badHdr[:])
	if err := bad.Send(rawFrame(badHdr[:])); err != nil {
		t.Fatalf("sending bad-magic frame: %v", err)
	}

	if _, err := bad.Recv(); err == nil {
		t.Fatal("Recv on the bad-magic session: expected the router to have closed it")
	}

	code, ret, err := good.Call("bbus.echo.echo", object.New())
	if err != nil {
		t.Fatalf("Call on the surviving session: %v", err)
	}
	if code != busybus.EGood {
		t.Fatalf("Call: got ErrCode %v, want EGood", code)
	}
	if ret == nil {
		t.Fatal("Call: expected a result object")
	}
}

// rawFrame decodes pre-encoded header bytes into a Frame, so that
// WriteTo's re-encoding reproduces them exactly (including a corrupt
// magic number) without going through NewFrame's always-valid constructor.
func rawFrame(b []byte) *busybus.Frame {
	f := &busybus.Frame{}
	f.Header.Decode(b)
	return f
}

// TestRouterLifecycleNoGoroutineLeaks starts a router, drives one session
// through a call, shuts it down, and waits for Serve to return — all
// before returning, so the registered leaktest check sees a clean
// goroutine set.
func TestRouterLifecycleNoGoroutineLeaks(t *testing.T) {
	defer leaktest.Check(t)()

	dir := t.TempDir()
	cfg := busybus.NewConfig()
	cfg.SockPath = filepath.Join(dir, "lifecycle.sock")
	cfg.PollTimeout = 10 * time.Millisecond

	reg := registry.New()
	if err := reg.InsertLocal("bbus.echo.echo", func(arg *object.Object) (*object.Object, error) {
		return arg, nil
	}); err != nil {
		t.Fatalf("InsertLocal: %v", err)
	}
	r := busybus.NewRouter(cfg, reg)

	g := taskgroup.New(nil)
	g.Go(r.Serve)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(cfg.SockPath); err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	conn, err := transport.Connect(cfg.SockPath)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	so := busybus.NewFrame(busybus.MsgSO, busybus.SOCaller, busybus.EGood, 0, "lifecycle", nil)
	if _, err := so.WriteTo(conn); err != nil {
		t.Fatalf("send SO: %v", err)
	}
	rsp, err := busybus.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read SOOK: %v", err)
	}
	if rsp.Header.MsgType != busybus.MsgSOOK {
		t.Fatalf("handshake: got %v, want SOOK", rsp.Header.MsgType)
	}

	call := busybus.NewFrame(busybus.MsgCLICALL, busybus.SONone, busybus.EGood, rsp.Header.Token, "bbus.echo.echo", object.New())
	if _, err := call.WriteTo(conn); err != nil {
		t.Fatalf("send CLICALL: %v", err)
	}
	if _, err := busybus.ReadFrame(conn); err != nil {
		t.Fatalf("read CLIREPLY: %v", err)
	}
	conn.Close()

	r.Shutdown()
	if err := g.Wait(); err != nil {
		t.Errorf("Serve: %v", err)
	}
}

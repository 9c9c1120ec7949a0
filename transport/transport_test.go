package transport_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bbgo/busybus/transport"
)

func tempSockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), fmt.Sprintf("bbus-%d.sock", os.Getpid()))
}

func TestListenAcceptConnect(t *testing.T) {
	path := tempSockPath(t)
	ln, err := transport.Listen(path, 1)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, creds, err := ln.Accept()
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		defer conn.Close()
		if creds.PID == 0 {
			t.Errorf("Accept: expected nonzero peer pid")
		}
		buf := make([]byte, 5)
		if err := conn.RecvExact(buf); err != nil {
			t.Errorf("RecvExact: %v", err)
			return
		}
		if string(buf) != "hello" {
			t.Errorf("RecvExact: got %q, want %q", buf, "hello")
		}
	}()

	cli, err := transport.Connect(path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer cli.Close()
	if err := cli.SendAll([]byte("hello")); err != nil {
		t.Fatalf("SendAll: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept goroutine")
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := tempSockPath(t)
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	ln, err := transport.Listen(path, 1)
	if err != nil {
		t.Fatalf("Listen over stale file: %v", err)
	}
	ln.Close()
}

func TestPollSetReportsReadiness(t *testing.T) {
	path := tempSockPath(t)
	ln, err := transport.Listen(path, 1)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	var ps transport.PollSet
	ps.Reset()
	if err := ps.Add(ln, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	go func() {
		cli, err := transport.Connect(path)
		if err == nil {
			defer cli.Close()
		}
	}()

	ready, err := ps.Wait(2 * time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(ready) != 1 {
		t.Fatalf("Wait: got %d ready, want 1", len(ready))
	}
}

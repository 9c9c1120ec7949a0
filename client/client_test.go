package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bbgo/busybus"
	"github.com/bbgo/busybus/bustest"
	"github.com/bbgo/busybus/client"
	"github.com/bbgo/busybus/object"
)

func TestCallerAgainstLocalMethod(t *testing.T) {
	srv := bustest.Start(t)
	srv.Registry.InsertLocal("bbus.bbusd.double", func(arg *object.Object) (*object.Object, error) {
		vals, err := object.Parse(arg, "i")
		if err != nil {
			return nil, err
		}
		return object.Build("i", []any{vals[0].(int32) * 2})
	})

	c, err := client.Dial(srv.SockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	arg, err := object.Build("i", []any{int32(21)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ret, err := c.Call("bbus.bbusd.double", arg)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	vals, err := object.Parse(ret, "i")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := vals[0].(int32); got != 42 {
		t.Errorf("result: got %d, want 42", got)
	}
}

func TestCallerNoSuchMethod(t *testing.T) {
	srv := bustest.Start(t)
	c, err := client.Dial(srv.SockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Call("bbus.nope.nope", nil); !errors.Is(err, busybus.ErrNoMethod) {
		t.Errorf("Call: got %v, want wrapping ErrNoMethod", err)
	}
}

func TestCallerAndProviderRoundTrip(t *testing.T) {
	srv := bustest.Start(t)

	prov, err := client.DialProvider(srv.SockPath, "greeter")
	if err != nil {
		t.Fatalf("DialProvider: %v", err)
	}
	defer prov.Close()

	err = prov.Register("hello", "s", "s", func(leaf string, arg *object.Object) (*object.Object, error) {
		vals, err := object.Parse(arg, "s")
		if err != nil {
			return nil, err
		}
		return object.Build("s", []any{"hello, " + vals[0].(string)})
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go prov.Serve(ctx)

	caller, err := client.Dial(srv.SockPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer caller.Close()

	arg, err := object.Build("s", []any{"world"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var ret *object.Object
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		ret, err = caller.Call("bbus.greeter.hello", arg)
		if err == nil {
			break
		}
	}
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	vals, err := object.Parse(ret, "s")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := vals[0].(string); got != "hello, world" {
		t.Errorf("result: got %q, want %q", got, "hello, world")
	}
}

// Package transport provides the local stream-socket primitives the
// router's readiness loop is built on: listen/accept with peer
// credentials, connect, and a poll(2)-based readiness set. Reads, writes
// and accepts are ordinary blocking calls on the underlying net
// connection; callers consult a PollSet first and bound the call with a
// deadline so it does not block indefinitely.
package transport

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Credentials are the peer credentials captured at accept time via
// SO_PEERCRED.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

// SuppressSIGPIPE installs a process-wide handler that ignores SIGPIPE, so
// that a write to a socket whose peer has hung up surfaces as an ordinary
// error return from a write rather than killing the process. It should be
// called once, early in daemon startup.
func SuppressSIGPIPE() {
	signal.Ignore(syscall.SIGPIPE)
}

// Listener wraps a Unix-domain stream listener, removing any stale socket
// file at the given path before binding.
type Listener struct {
	path string
	ln   *net.UnixListener
}

// Listen unlinks any stale file at path, then binds and listens with the
// given backlog. backlog is advisory on platforms (like Go's net package)
// that do not expose it directly; it is recorded for parity with the
// transport primitive named in the design and currently has no effect
// beyond documentation, since net.ListenUnix always uses the platform
// default backlog.
func Listen(path string, backlog int) (*Listener, error) {
	if len(path) > 256 {
		return nil, fmt.Errorf("transport: socket path %q exceeds 256 bytes", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("transport: removing stale socket: %w", err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	return &Listener{path: path, ln: ln}, nil
}

// Path returns the filesystem path the listener is bound to.
func (l *Listener) Path() string { return l.path }

// FD returns the listener's raw file descriptor, for registration in a
// PollSet.
func (l *Listener) FD() (int, error) { return rawFD(l.ln) }

// SetAcceptDeadline bounds the next Accept call, used by the router to
// drain every pending connection without blocking once the listener is
// no longer ready.
func (l *Listener) SetAcceptDeadline(t time.Time) error { return l.ln.SetDeadline(t) }

// ClearAcceptDeadline removes any deadline set by SetAcceptDeadline.
func (l *Listener) ClearAcceptDeadline() error { return l.ln.SetDeadline(time.Time{}) }

// Accept accepts one pending connection and captures its peer
// credentials. It blocks until a connection arrives or the deadline set by
// SetAcceptDeadline passes; callers should only call Accept after a
// PollSet reports the listener ready.
func (l *Listener) Accept() (*Conn, Credentials, error) {
	uc, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, Credentials{}, err
	}
	creds, err := peerCredentials(uc)
	if err != nil {
		uc.Close()
		return nil, Credentials{}, err
	}
	return &Conn{uc: uc}, creds, nil
}

// Close closes the listener and removes the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	os.Remove(l.path)
	return err
}

// Conn wraps a single accepted or dialed Unix-domain stream connection.
type Conn struct {
	uc *net.UnixConn

	closeOnce sync.Once
}

// Connect dials the local stream socket at path.
func Connect(path string) (*Conn, error) {
	if len(path) > 256 {
		return nil, fmt.Errorf("transport: socket path %q exceeds 256 bytes", path)
	}
	uc, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	return &Conn{uc: uc}, nil
}

// FD returns the connection's raw file descriptor, for registration in a
// PollSet.
func (c *Conn) FD() (int, error) { return rawFD(c.uc) }

// RecvExact reads exactly len(buf) bytes, looping until the buffer is
// full. It returns the underlying read error unchanged (io.EOF if the peer
// closes first), or an error if a read returns no bytes and no error.
func (c *Conn) RecvExact(buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := c.uc.Read(buf[n:])
		if m > 0 {
			n += m
		}
		if err != nil {
			return err
		}
		if m == 0 {
			return fmt.Errorf("transport: received 0 bytes with %d remaining", len(buf)-n)
		}
	}
	return nil
}

// SendAll writes all of buf, looping until every byte has been written.
func (c *Conn) SendAll(buf []byte) error {
	n := 0
	for n < len(buf) {
		m, err := c.uc.Write(buf[n:])
		if m > 0 {
			n += m
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Read implements io.Reader.
func (c *Conn) Read(p []byte) (int, error) { return c.uc.Read(p) }

// Write implements io.Writer.
func (c *Conn) Write(p []byte) (int, error) { return c.uc.Write(p) }

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.uc.Close() })
	return err
}

// SetReadDeadline sets a deadline for subsequent reads on the connection,
// bounding the handshake read and each per-session frame read. A zero
// value clears any previously set deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.uc.SetReadDeadline(t)
}

func rawFD(f interface{ SyscallConn() (syscall.RawConn, error) }) (int, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	cerr := rc.Control(func(d uintptr) { fd = int(d) })
	if cerr != nil {
		return -1, cerr
	}
	return fd, nil
}

func peerCredentials(uc *net.UnixConn) (Credentials, error) {
	rc, err := uc.SyscallConn()
	if err != nil {
		return Credentials{}, err
	}
	var cred *unix.Ucred
	var operr error
	err = rc.Control(func(fd uintptr) {
		cred, operr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return Credentials{}, err
	}
	if operr != nil {
		return Credentials{}, operr
	}
	return Credentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}

package transport

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ErrInterrupted is returned by (*PollSet).Wait when the underlying
// poll(2) call is interrupted by a signal (EINTR); the router's main loop
// treats this as transparent and simply continues.
var ErrInterrupted = errors.New("transport: poll interrupted by a signal")

// Fder is satisfied by anything a PollSet can watch: Listener and Conn.
type Fder interface {
	FD() (int, error)
}

// PollSet is a single-threaded, reusable readiness set built on poll(2).
// It is rebuilt every iteration of the router's main loop: Reset, then one
// Add per live listener/connection, then one Wait call.
type PollSet struct {
	fds   []unix.PollFd
	owner []Fder
}

// Reset clears the set so it can be repopulated for the next poll
// iteration.
func (p *PollSet) Reset() {
	p.fds = p.fds[:0]
	p.owner = p.owner[:0]
}

// Add registers f for readiness on read (and, if wantWrite is true, also
// write) events.
func (p *PollSet) Add(f Fder, wantWrite bool) error {
	fd, err := f.FD()
	if err != nil {
		return err
	}
	events := int16(unix.POLLIN)
	if wantWrite {
		events |= unix.POLLOUT
	}
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: events})
	p.owner = append(p.owner, f)
	return nil
}

// Wait blocks for up to timeout for any registered descriptor to become
// ready, or returns ErrInterrupted if the call was interrupted by a
// signal. It returns the owners (in the order they were Added) that have
// at least one of read-ready or write-ready set.
func (p *PollSet) Wait(timeout time.Duration) ([]Fder, error) {
	n, err := unix.Poll(p.fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return nil, ErrInterrupted
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ready := make([]Fder, 0, n)
	for i, fd := range p.fds {
		if fd.Revents&(unix.POLLIN|unix.POLLOUT|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, p.owner[i])
		}
	}
	return ready, nil
}

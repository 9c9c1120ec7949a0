package busybus

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bbgo/busybus/registry"
	"github.com/bbgo/busybus/transport"
)

// Router owns the listener, the live-client set, the pending-token map,
// and the monitor set, and drives the single-threaded readiness loop of
// §4.6. A Router must be constructed with NewRouter; the zero value is
// not usable.
type Router struct {
	cfg *Config
	reg *registry.Registry
	ln  *transport.Listener

	mu       sync.Mutex // guards everything below
	sessions map[*Session]struct{}
	monitors map[*Session]struct{}
	pending  map[uint32]*pendingCall // token -> outstanding call, awaiting SRVREPLY
	nextTok  uint32
	limiters map[*Session]*rate.Limiter

	running atomic.Bool
	metrics *routerMetrics
}

// pendingCall records that the router forwarded a caller's CLICALL to a
// provider as an SRVCALL, and is waiting to ferry the matching SRVREPLY
// back, per §4.6.2.
type pendingCall struct {
	caller   *Session
	provider *Session
}

// NewRouter constructs a Router bound to reg, which must already contain
// any locally-implemented methods the daemon will serve (see
// registry.New and registry.Registry.InsertLocal).
func NewRouter(cfg *Config, reg *registry.Registry) *Router {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Router{
		cfg:      cfg,
		reg:      reg,
		sessions: make(map[*Session]struct{}),
		monitors: make(map[*Session]struct{}),
		pending:  make(map[uint32]*pendingCall),
		limiters: make(map[*Session]*rate.Limiter),
		metrics:  newRouterMetrics(),
	}
}

// Registry returns the router's method registry.
func (r *Router) Registry() *registry.Registry { return r.reg }

// Metrics returns the router's expvar map of activity counters.
func (r *Router) Metrics() *routerMetrics { return r.metrics }

// Serve binds the configured socket path and runs the readiness loop
// until Shutdown is called or a fatal transport error occurs. It returns
// nil on a clean shutdown.
func (r *Router) Serve() error {
	ln, err := transport.Listen(r.cfg.sockPath(), r.cfg.backlog())
	if err != nil {
		return fmt.Errorf("busybus: listen: %w", err)
	}
	r.ln = ln
	defer ln.Close()

	r.running.Store(true)
	var ps transport.PollSet
	for r.running.Load() {
		ps.Reset()
		if err := ps.Add(r.ln, false); err != nil {
			return fmt.Errorf("busybus: registering listener: %w", err)
		}
		r.mu.Lock()
		conns := make(map[transport.Fder]*Session, len(r.sessions))
		for s := range r.sessions {
			conns[s.Conn] = s
		}
		r.mu.Unlock()
		for _, s := range conns {
			if err := ps.Add(s.Conn, false); err != nil {
				r.cfg.logger().Printf("busybus: dropping session %s: %v", s.Name, err)
				r.closeSession(s)
			}
		}

		ready, err := ps.Wait(r.cfg.pollTimeout())
		if err != nil {
			if errors.Is(err, transport.ErrInterrupted) {
				continue
			}
			return fmt.Errorf("busybus: poll: %w", err)
		}

		for _, f := range ready {
			if f == Fder(r.ln) {
				r.acceptPending()
				continue
			}
			if s, ok := conns[f]; ok {
				r.serviceSession(s)
			}
		}
	}
	return nil
}

// Fder is re-exported so callers comparing a PollSet's ready entries
// against the listener can do so without importing transport directly.
type Fder = transport.Fder

// Shutdown flips the atomic run flag so the main loop exits after its
// current iteration; it does not forcibly close any session.
func (r *Router) Shutdown() { r.running.Store(false) }

// acceptPending accepts every currently-pending connection on the
// listener and runs the session-open handshake on each, per §4.6 step 3.
func (r *Router) acceptPending() {
	for {
		if err := r.ln.SetAcceptDeadline(time.Now()); err != nil {
			r.cfg.logger().Printf("busybus: set accept deadline: %v", err)
			return
		}
		conn, creds, err := r.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return // no more pending connections this iteration
			}
			r.cfg.logger().Printf("busybus: accept: %v", err)
			return
		}
		r.ln.ClearAcceptDeadline()
		r.handshake(conn, creds)
	}
}

// handshake performs the server side of §4.4's SO/SOOK/SORJCT exchange.
func (r *Router) handshake(conn *transport.Conn, creds Credentials) {
	session := newSession(conn, creds)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := ReadFrameLimit(conn, r.cfg.maxPayload())
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		r.cfg.logger().Printf("busybus: handshake read: %v", err)
		conn.Close()
		return
	}
	if f.Header.Magic != Magic || f.Header.MsgType != MsgSO {
		r.rejectAndClose(conn, "expected SO")
		return
	}
	switch f.Header.SOType {
	case SOCaller, SOProvider, SOMonitor, SOControl:
		session.Type = f.Header.SOType
	default:
		r.rejectAndClose(conn, "unknown session-open type")
		return
	}
	if name, ok := f.ExtractMeta(); ok {
		session.Name = truncateName(name)
	}

	if r.cfg.Authenticator != nil {
		if err := r.cfg.Authenticator.Authenticate(creds); err != nil {
			r.rejectAndClose(conn, err.Error())
			return
		}
	}

	r.mu.Lock()
	if session.Type == SOCaller {
		r.nextTok++
		if r.nextTok == 0 {
			r.nextTok = 1
		}
		session.Token = r.nextTok
	}
	r.sessions[session] = struct{}{}
	if session.Type == SOMonitor {
		r.monitors[session] = struct{}{}
	}
	if session.Type == SOCaller && r.cfg.RateLimit != nil {
		r.limiters[session] = rate.NewLimiter(r.cfg.RateLimit.Rate, r.cfg.RateLimit.Burst)
	}
	r.mu.Unlock()

	session.setState(StateOpen)
	ok := NewFrame(MsgSOOK, session.Type, EGood, session.Token, "", nil)
	if _, err := ok.WriteTo(conn); err != nil {
		r.cfg.logger().Printf("busybus: send SOOK: %v", err)
		r.closeSession(session)
		return
	}
	r.metrics.acceptsOK.Add(1)
}

func (r *Router) rejectAndClose(conn *transport.Conn, reason string) {
	r.metrics.acceptsReject.Add(1)
	rej := NewFrame(MsgSORJCT, SONone, EGood, 0, reason, nil)
	rej.WriteTo(conn)
	conn.Close()
}

// serviceSession reads exactly one frame from s, mirrors it to the
// monitors, then dispatches it according to s's client type, per §4.6
// step 4.
func (r *Router) serviceSession(s *Session) {
	s.Conn.SetReadDeadline(time.Now().Add(r.cfg.pollTimeout()))
	f, err := ReadFrameLimit(s.Conn, r.cfg.maxPayload())
	s.Conn.SetReadDeadline(time.Time{})
	if err != nil {
		r.cfg.logger().Printf("busybus: session %s: %v", s.Name, err)
		r.closeSession(s)
		return
	}
	if f.Header.Magic != Magic {
		r.cfg.logger().Printf("busybus: session %s: bad magic, closing", s.Name)
		r.closeSession(s)
		return
	}
	r.metrics.framesIn.Add(1)
	r.fanoutToMonitors(f, s)
	r.dispatch(s, f)
}

// closeSession tears a session down: removes it from the multiplex set
// and the monitor set, cleans up pending calls it owned, and — for
// providers — removes every remote registry entry it published.
func (r *Router) closeSession(s *Session) {
	s.setState(StateClosing)

	r.mu.Lock()
	delete(r.sessions, s)
	delete(r.monitors, s)
	delete(r.limiters, s)
	var orphaned []*pendingCall
	for tok, pc := range r.pending {
		if pc.caller == s {
			// The caller itself is gone; nothing to reply to.
			delete(r.pending, tok)
		} else if pc.provider == s {
			orphaned = append(orphaned, pc)
			delete(r.pending, tok)
		}
	}
	r.mu.Unlock()

	if s.Type == SOProvider {
		r.reg.RemoveByProvider(s)
	}

	for _, pc := range orphaned {
		r.replyMethodError(pc.caller)
	}

	s.setState(StateClosed)
	s.Conn.Close()
}

// replyMethodError sends caller a CLIREPLY/EMETHODERR with no object,
// used when a provider disconnects with a call still outstanding.
func (r *Router) replyMethodError(caller *Session) {
	rsp := NewFrame(MsgCLIREPLY, SONone, EMethodErr, caller.Token, "", nil)
	if _, err := rsp.WriteTo(caller.Conn); err != nil {
		r.cfg.logger().Printf("busybus: reply to caller %s: %v", caller.Name, err)
	}
}

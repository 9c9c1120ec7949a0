package busybus

import (
	"fmt"
	"strings"

	"github.com/bbgo/busybus/object"
	"github.com/bbgo/busybus/registry"
)

// dispatch routes one inbound frame from s according to its client type,
// per §4.6 step 4 and the per-type message lists of §4.6.1/§4.6.2.
func (r *Router) dispatch(s *Session, f *Frame) {
	if f.Header.MsgType == MsgCLOSE {
		r.closeSession(s)
		return
	}

	switch s.Type {
	case SOCaller:
		switch f.Header.MsgType {
		case MsgCLICALL:
			r.handleCLICALL(s, f)
		default:
			r.cfg.logger().Printf("busybus: caller %s sent unexpected %v", s.Name, f.Header.MsgType)
			r.closeSession(s)
		}
	case SOProvider:
		switch f.Header.MsgType {
		case MsgSRVREG:
			r.handleSRVREG(s, f)
		case MsgSRVUNREG:
			r.handleSRVUNREG(s, f)
		case MsgSRVREPLY:
			r.handleSRVREPLY(s, f)
		default:
			r.cfg.logger().Printf("busybus: provider %s sent unexpected %v", s.Name, f.Header.MsgType)
			r.closeSession(s)
		}
	case SOControl:
		switch f.Header.MsgType {
		case MsgCTRL:
			r.handleCTRL(s, f)
		default:
			r.cfg.logger().Printf("busybus: control %s sent unexpected %v", s.Name, f.Header.MsgType)
			r.closeSession(s)
		}
	default: // monitor, or anything else: monitors never send application traffic
		r.cfg.logger().Printf("busybus: session %s (%v) sent unexpected %v", s.Name, s.Type, f.Header.MsgType)
		r.closeSession(s)
	}
}

// handleCLICALL implements §4.6.2's caller-to-provider half of call
// dispatch.
func (r *Router) handleCLICALL(s *Session, f *Frame) {
	path, ok := f.ExtractMeta()
	if !ok {
		r.sendCLIREPLY(s, ENoMethod, nil)
		return
	}
	arg, ok := f.ExtractObject()
	if !ok {
		// A CLICALL with no object payload is valid (a no-argument
		// call); give handlers a usable empty Object instead of nil so
		// object.Parse's Rewind doesn't dereference a nil receiver.
		arg = object.New()
	}

	if lim := r.callerLimiter(s); lim != nil && !lim.Allow() {
		r.metrics.callsErr.Add(1)
		r.sendCLIREPLY(s, EMethodErr, nil)
		return
	}

	entry, ok := r.reg.Lookup(path)
	if !ok {
		r.metrics.callsNoMethod.Add(1)
		r.sendCLIREPLY(s, ENoMethod, nil)
		return
	}
	r.metrics.callsDispatch.Add(1)

	if entry.IsLocal() {
		ret, err := r.callLocal(entry.Local, arg)
		if err != nil {
			r.cfg.logger().Printf("busybus: local method %q: %v", path, err)
			r.metrics.callsErr.Add(1)
			r.sendCLIREPLY(s, EMethodErr, nil)
			return
		}
		r.sendCLIREPLY(s, EGood, ret)
		return
	}

	provider, ok := entry.Provider.(*Session)
	if !ok || provider.State() != StateOpen {
		r.sendCLIREPLY(s, EMethodErr, nil)
		return
	}

	r.mu.Lock()
	r.pending[s.Token] = &pendingCall{caller: s, provider: provider}
	r.mu.Unlock()

	call := NewFrame(MsgSRVCALL, SONone, EGood, s.Token, entry.LeafName, arg)
	if _, err := call.WriteTo(provider.Conn); err != nil {
		r.mu.Lock()
		delete(r.pending, s.Token)
		r.mu.Unlock()
		r.cfg.logger().Printf("busybus: forwarding call to provider %s: %v", provider.Name, err)
		r.sendCLIREPLY(s, EMethodErr, nil)
	}
}

// handleSRVREPLY implements §4.6.2's provider-to-caller half of call
// dispatch.
func (r *Router) handleSRVREPLY(s *Session, f *Frame) {
	token := f.Header.Token

	r.mu.Lock()
	pc, ok := r.pending[token]
	if ok {
		delete(r.pending, token)
	}
	r.mu.Unlock()

	if !ok {
		r.cfg.logger().Printf("busybus: provider %s: SRVREPLY for unknown token %d", s.Name, token)
		return
	}

	ret, _ := f.ExtractObject()
	r.sendCLIREPLYToken(pc.caller, token, f.Header.ErrCode, ret)
}

// handleSRVREG implements registration, normalizing the provider's meta
// per §4.5 and the SRVACK reply contract.
func (r *Router) handleSRVREG(s *Session, f *Frame) {
	meta, ok := f.ExtractMeta()
	if !ok {
		r.sendSRVACK(s, EMRegErr)
		return
	}
	parts := strings.SplitN(meta, ",", 4)
	if len(parts) < 2 {
		r.sendSRVACK(s, EMRegErr)
		return
	}
	servicePath, methodName := parts[0], parts[1]

	path, err := registry.NormalizeServicePath(servicePath, methodName)
	if err != nil {
		r.cfg.logger().Printf("busybus: SRVREG from %s: %v", s.Name, err)
		r.sendSRVACK(s, EMRegErr)
		return
	}
	if err := r.reg.InsertRemote(path, s, methodName); err != nil {
		r.cfg.logger().Printf("busybus: SRVREG from %s: %v", s.Name, err)
		r.metrics.regErr.Add(1)
		r.sendSRVACK(s, EMRegErr)
		return
	}
	r.metrics.regOK.Add(1)
	r.sendSRVACK(s, EGood)
}

// handleSRVUNREG implements real removal-by-path, a feature the original
// daemon stubbed out as a no-op.
func (r *Router) handleSRVUNREG(s *Session, f *Frame) {
	meta, ok := f.ExtractMeta()
	if !ok {
		r.sendSRVACK(s, EMRegErr)
		return
	}
	parts := strings.SplitN(meta, ",", 2)
	if len(parts) < 2 {
		r.sendSRVACK(s, EMRegErr)
		return
	}
	path, err := registry.NormalizeServicePath(parts[0], parts[1])
	if err != nil {
		r.sendSRVACK(s, EMRegErr)
		return
	}
	entry, ok := r.reg.Lookup(path)
	if !ok || entry.Provider != any(s) {
		r.sendSRVACK(s, EMRegErr)
		return
	}
	r.reg.Remove(path)
	r.sendSRVACK(s, EGood)
}

// callLocal invokes fn and recovers any panic, turning it into an error so
// one caller-controlled method invocation can never take the rest of the
// router down with it, per §7.
func (r *Router) callLocal(fn registry.LocalFunc, arg *object.Object) (ret *object.Object, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(arg)
}

func (r *Router) sendCLIREPLY(s *Session, code ErrCode, ret *object.Object) {
	r.sendCLIREPLYToken(s, s.Token, code, ret)
}

func (r *Router) sendCLIREPLYToken(s *Session, token uint32, code ErrCode, ret *object.Object) {
	rsp := NewFrame(MsgCLIREPLY, SONone, code, token, "", ret)
	if _, err := rsp.WriteTo(s.Conn); err != nil {
		r.cfg.logger().Printf("busybus: sending CLIREPLY to %s: %v", s.Name, err)
	}
}

func (r *Router) sendSRVACK(s *Session, code ErrCode) {
	ack := NewFrame(MsgSRVACK, SONone, code, 0, "", nil)
	if _, err := ack.WriteTo(s.Conn); err != nil {
		r.cfg.logger().Printf("busybus: sending SRVACK to %s: %v", s.Name, err)
	}
}

func (r *Router) callerLimiter(s *Session) interface{ Allow() bool } {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[s]
	if !ok {
		return nil
	}
	return lim
}

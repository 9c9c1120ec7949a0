package busybus

import (
	"github.com/bbgo/busybus/object"
)

// handleCTRL implements the control session's introspection and shutdown
// commands. The command name travels as the frame's meta string; CTRL
// never carries an object payload on the way in.
func (r *Router) handleCTRL(s *Session, f *Frame) {
	cmd, ok := f.ExtractMeta()
	if !ok {
		r.sendCLIREPLY(s, EMethodErr, nil)
		return
	}
	switch cmd {
	case "methods":
		r.replyStringArray(s, r.reg.Paths())
	case "clients":
		r.replyStringArray(s, r.clientDescriptors())
	case "shutdown":
		r.Shutdown()
		r.sendCLIREPLY(s, EGood, nil)
	default:
		r.cfg.logger().Printf("busybus: control %s: unknown command %q", s.Name, cmd)
		r.sendCLIREPLY(s, EMethodErr, nil)
	}
}

func (r *Router) replyStringArray(s *Session, items []string) {
	vals := make([]any, len(items))
	for i, it := range items {
		vals[i] = it
	}
	obj, err := object.Build("As", []any{vals})
	if err != nil {
		r.cfg.logger().Printf("busybus: control %s: building reply: %v", s.Name, err)
		r.sendCLIREPLY(s, EMethodErr, nil)
		return
	}
	r.sendCLIREPLY(s, EGood, obj)
}

// clientDescriptors lists every live session as "type:name", for the
// "clients" control command.
func (r *Router) clientDescriptors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.sessions))
	for sess := range r.sessions {
		out = append(out, sess.Type.String()+":"+sess.Name)
	}
	return out
}

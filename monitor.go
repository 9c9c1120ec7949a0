package busybus

// fanoutToMonitors mirrors f, a frame received from session from, to every
// other live monitor session, per §4.6.3. Monitors are a passive observer role: a
// write failure to one monitor is logged and otherwise ignored, and never
// aborts dispatch of the original frame.
func (r *Router) fanoutToMonitors(f *Frame, from *Session) {
	r.mu.Lock()
	if len(r.monitors) == 0 {
		r.mu.Unlock()
		return
	}
	targets := make([]*Session, 0, len(r.monitors))
	for m := range r.monitors {
		if m == from {
			continue
		}
		targets = append(targets, m)
	}
	r.mu.Unlock()

	for _, m := range targets {
		mon := &Frame{Header: f.Header, Payload: f.Payload}
		mon.Header.MsgType = MsgMON
		if _, err := mon.WriteTo(m.Conn); err != nil {
			r.cfg.logger().Printf("busybus: monitor %s: %v", m.Name, err)
			continue
		}
		r.metrics.monitorFanout.Add(1)
	}
}

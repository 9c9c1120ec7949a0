package busybus

import "expvar"

// routerMetrics record router activity counters, exposed via an
// *expvar.Map so a daemon can publish them under /debug/vars alongside
// its own.
type routerMetrics struct {
	framesIn      expvar.Int
	acceptsOK     expvar.Int
	acceptsReject expvar.Int
	callsDispatch expvar.Int
	callsNoMethod expvar.Int
	callsErr      expvar.Int
	regOK         expvar.Int
	regErr        expvar.Int
	monitorFanout expvar.Int

	emap *expvar.Map
}

func newRouterMetrics() *routerMetrics {
	rm := &routerMetrics{emap: new(expvar.Map)}
	rm.emap.Set("frames_in", &rm.framesIn)
	rm.emap.Set("accepts_ok", &rm.acceptsOK)
	rm.emap.Set("accepts_rejected", &rm.acceptsReject)
	rm.emap.Set("calls_dispatched", &rm.callsDispatch)
	rm.emap.Set("calls_no_method", &rm.callsNoMethod)
	rm.emap.Set("calls_failed", &rm.callsErr)
	rm.emap.Set("registrations_ok", &rm.regOK)
	rm.emap.Set("registrations_failed", &rm.regErr)
	rm.emap.Set("monitor_fanout", &rm.monitorFanout)
	return rm
}

// Publish installs m's counters under name in expvar's global map, for a
// daemon that wants /debug/vars visibility. It is the caller's
// responsibility to pick a name unique within the process.
func (m *routerMetrics) Publish(name string) {
	expvar.Publish(name, m.emap)
}

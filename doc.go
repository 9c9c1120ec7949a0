// Package busybus implements the Busybus message-bus protocol: a local
// IPC router that lets caller processes invoke methods published by
// provider processes over a single Unix-domain socket, without callers
// and providers needing to know about each other directly.
//
// # Router
//
// The core type is the [Router]. A Router owns a listening socket, a
// [registry.Registry] of published methods, and the single-threaded
// readiness loop that multiplexes every connected session:
//
//	reg := registry.New()
//	reg.InsertLocal("bbus.bbusd.ping", pingHandler)
//	r := busybus.NewRouter(busybus.NewConfig(), reg)
//	if err := r.Serve(); err != nil {
//	    log.Fatal(err)
//	}
//
// Serve runs until [Router.Shutdown] is called or a fatal transport
// error occurs.
//
// # Sessions
//
// A client connects to the router's socket and opens a session by
// sending an SO frame naming its role: caller, provider, monitor, or
// control. The router replies SOOK or SORJCT, and the session then
// exchanges messages appropriate to its role for as long as the
// connection lasts. [Session] tracks a connection's role, name, peer
// credentials, and position in the OPENING/OPEN/CLOSING/CLOSED state
// machine.
//
// # Calls
//
// A caller session issues a CLICALL naming a dotted method path and
// carrying an argument object; the router either invokes a locally
// registered handler directly or forwards the call to the owning
// provider session as an SRVCALL, correlating the eventual SRVREPLY
// back to the original caller by its session token. [handler] adapts
// ordinary Go functions into the [registry.LocalFunc] signature the
// registry expects.
//
// # Objects
//
// Method arguments and results travel as [object.Object] values: a
// small self-describing binary encoding of integers, strings, byte
// arrays, arrays, and structs, built and inspected through a textual
// type descriptor grammar (see the object package).
//
// # Monitors and control
//
// A monitor session receives a read-only copy of every frame the router
// handles. A control session issues introspection and administrative
// commands — "methods", "clients", "shutdown" — via CTRL frames.
//
// # Metrics
//
// The router maintains a collection of activity counters while running.
// Use [Router.Metrics] to obtain the counters, or its Publish method to
// expose them under expvar.
package busybus

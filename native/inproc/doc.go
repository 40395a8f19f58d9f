// Package inproc is an engine that runs Go functions in-process.
//
// It speaks the same string protocol as the native TON client library:
// CreateContext and RequestSync return {"result":...} or {"error":...}
// envelopes, and Request delivers typed responses to the ResponseHandler
// given to New, ending with exactly one finished response per request.
//
// Functions are registered by name ("module.function") or as modules:
//
//	type echo struct{}
//
//	func (echo) Namespace() string { return "echo" }
//
//	func (echo) Say(ctx context.Context, p struct{ Text string }) (string, error) {
//	    return p.Text, nil
//	}
//
//	e := inproc.New(handler)
//	e.Register(echo{})
//
// A function that takes a *Emitter may send intermediate responses, app
// notifications and app requests. Such functions are only callable
// asynchronously.
//
// The built-in "client" module provides version, build_info,
// get_api_reference and resolve_app_request.
package inproc

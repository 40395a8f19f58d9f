// Package dl loads a TON client shared library (libton_client.so,
// libton_client.dylib) with dlopen and drives it through its C ABI.
//
// Asynchronous requests go through tc_request_ptr. Each carries a
// runtime/cgo.Handle naming the engine and request id; the handle is
// released when the final response arrives. Responses are delivered on
// whatever thread the library calls back on.
//
// The package needs cgo. Without it Open reports an unsupported error.
package dl

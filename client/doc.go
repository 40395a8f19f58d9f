// Package client is the binding facade over a TON client engine.
//
// A Library owns one engine. It hands out context handles from a
// generation-checked table, so a destroyed handle can never reach a context
// created later, and it correlates asynchronous responses with the
// consumers registered for their request ids:
//
//	lib, err := client.LoadLibrary(ctx, "libton_client.so",
//	    client.WithLogger(log),
//	    client.WithRegisterer(prometheus.DefaultRegisterer))
//
//	h, err := lib.CreateContext(`{"network":{"endpoints":["..."]}}`)
//	err = lib.Request(h, "net.query", params, 1, consumer)
//	out, err := lib.RequestSync(h, "client.version", "{}")
//	err = lib.DestroyContext(h)
//
// Engines call Library.HandleResponse from any thread. It only enqueues;
// consumers run on one delivery goroutine per Library, in arrival order, and
// a panicking consumer is recovered and counted without affecting later
// deliveries. Responses for unknown request ids, or arriving after the
// request's final response, are dropped.
//
// Call and Client wrap the raw operations with request id allocation, JSON
// encoding of params and results, and automatic app request resolution.
package client

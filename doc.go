// Package tonbridge provides a Go binding facade for the TON client engine.
//
// The engine itself (networking, crypto, ABI processing) lives in a native
// library exposing the tc_* C ABI, in a WebAssembly build of it, or in an
// in-process Go implementation. This module owns the boundary: loading the
// engine, tracking context handles, correlating asynchronous responses with
// their requests, and delivering them to consumers without letting consumer
// failures leak back into the engine.
//
// # Architecture Overview
//
//	tonbridge/           Root package with the Engine and ResponseHandler contract
//	├── client/          Binding facade: Library, Client, Call, dispatcher, metrics
//	├── native/          Engine selection by path
//	│   ├── dl/          cgo dlopen backend for libton_client
//	│   ├── wasm/        wazero backend for WebAssembly engines
//	│   └── inproc/      In-process engine with Go function registry
//	├── handle/          Generation-checked handle table
//	├── config/          Client configuration files and env overrides
//	├── errors/          Structured error types
//	└── cmd/tonbridge/   CLI with one-shot calls and an interactive TUI
//
// # Quick Start
//
//	lib, err := client.LoadLibrary(ctx, "/usr/local/lib/libton_client.so")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lib.Close()
//
//	c, err := lib.NewClient(config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	var v struct{ Version string `json:"version"` }
//	if err := c.Call(ctx, "client.version", nil, &v); err != nil {
//	    log.Fatal(err)
//	}
//
// # Response Correlation
//
// Every asynchronous request carries a request id. The engine answers with
// zero or more intermediate responses followed by exactly one response with
// Finished set. The client package enforces that ordering toward consumers:
// chunks for unknown ids or arriving after the final one are dropped and
// counted.
//
// # Thread Safety
//
// Library, Client and Call are safe for concurrent use. Engines may invoke
// the response handler from any thread; handlers only enqueue, and consumer
// code runs on a dedicated delivery goroutine.
package tonbridge

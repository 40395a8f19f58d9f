// Package native selects and opens a TON client engine.
//
// Every engine implements tonbridge.Engine and delivers asynchronous
// responses to the tonbridge.ResponseHandler passed to Open. See the dl,
// wasm and inproc subpackages for the individual backends.
package native

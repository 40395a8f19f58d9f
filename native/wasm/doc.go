// Package wasm runs a TON client engine compiled to WebAssembly with wazero.
//
// The guest module must export:
//
//	memory
//	tc_alloc(len i32) -> ptr i32
//	tc_free(ptr i32, len i32)
//	tc_create_context(cfg_ptr i32, cfg_len i32) -> i64
//	tc_destroy_context(context i32)
//	tc_request(context, fn_ptr, fn_len, params_ptr, params_len, request_id i32)
//	tc_request_sync(context, fn_ptr, fn_len, params_ptr, params_len i32) -> i64
//
// and may export tc_poll() to make progress on asynchronous requests between
// calls. String results are packed as ptr<<32 | len and freed with tc_free
// once read.
//
// Responses arrive through the host import:
//
//	(import "tonbridge" "response"
//	    (func (param $request_id i32) (param $ptr i32) (param $len i32)
//	          (param $type i32) (param $finished i32)))
//
// WASI preview1 is available to the guest. A guest exporting _initialize
// has it run at instantiation.
package wasm

//go:build cgo && !windows

package dl

/*
#cgo linux LDFLAGS: -ldl
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
)

// Libraries stay loaded for the life of the process: the engine may still
// hold threads that call back into them.
var (
	libs   = make(map[string]*C.tb_library)
	libsMu sync.Mutex
)

func load(path string) (*C.tb_library, error) {
	libsMu.Lock()
	defer libsMu.Unlock()

	if lib, ok := libs[path]; ok {
		return lib, nil
	}

	lib := (*C.tb_library)(C.calloc(1, C.size_t(unsafe.Sizeof(C.tb_library{}))))
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var errBuf [512]C.char
	rc := C.tb_open(cpath, lib, &errBuf[0], C.size_t(len(errBuf)))
	switch {
	case rc < 0:
		C.free(unsafe.Pointer(lib))
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Detail("dlopen %s: %s", path, C.GoString(&errBuf[0])).
			Build()
	case rc > 0:
		C.free(unsafe.Pointer(lib))
		return nil, errors.NewMissingExportsError(path, missingSymbols(int(rc)))
	}

	libs[path] = lib
	return lib, nil
}

type callSite struct {
	engine    *Engine
	requestID uint32
}

// Engine calls a TON client shared library through its C ABI.
// mu keeps Close from overlapping a call into the library. The response
// callback must not take mu: tc_request_ptr may answer on the calling
// thread while Request still holds the read lock.
type Engine struct {
	handler tonbridge.ResponseHandler
	lib     *C.tb_library
	log     *zap.Logger
	path    string
	pending atomic.Int64
	closed  atomic.Bool
	mu      sync.RWMutex
}

// Open loads the library at path. Loading the same path again reuses the
// already loaded library.
func Open(path string, h tonbridge.ResponseHandler, cfg *Config) (*Engine, error) {
	if h == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "response handler is nil")
	}
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "library path is empty")
	}

	lib, err := load(path)
	if err != nil {
		return nil, err
	}

	log := cfg.logger()
	log.Debug("library loaded", zap.String("path", path))
	return &Engine{handler: h, lib: lib, log: log, path: path}, nil
}

func (e *Engine) CreateContext(config string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return "", errors.Closed(errors.PhaseContext, "library "+e.path)
	}

	cfg := C.CString(config)
	defer C.free(unsafe.Pointer(cfg))

	var n C.uint32_t
	out := C.tb_create_context(e.lib, cfg, C.uint32_t(len(config)), &n)
	return take(out, n, "tc_create_context")
}

func (e *Engine) DestroyContext(id uint32) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return
	}
	C.tb_destroy_context(e.lib, C.uint32_t(id))
}

func (e *Engine) Request(id uint32, function, params string, requestID uint32) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return errors.Closed(errors.PhaseRequest, "library "+e.path)
	}

	fn := C.CString(function)
	defer C.free(unsafe.Pointer(fn))
	p := C.CString(params)
	defer C.free(unsafe.Pointer(p))

	// Released by goTonResponse on the final response.
	site := cgo.NewHandle(&callSite{engine: e, requestID: requestID})
	e.pending.Add(1)
	C.tb_request(e.lib, C.uint32_t(id),
		fn, C.uint32_t(len(function)),
		p, C.uint32_t(len(params)),
		C.uintptr_t(site))
	return nil
}

func (e *Engine) RequestSync(id uint32, function, params string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return "", errors.Closed(errors.PhaseRequest, "library "+e.path)
	}

	fn := C.CString(function)
	defer C.free(unsafe.Pointer(fn))
	p := C.CString(params)
	defer C.free(unsafe.Pointer(p))

	var n C.uint32_t
	out := C.tb_request_sync(e.lib, C.uint32_t(id),
		fn, C.uint32_t(len(function)),
		p, C.uint32_t(len(params)),
		&n)
	return take(out, n, "tc_request_sync")
}

// Close detaches the engine. The library stays loaded; responses that
// arrive afterwards are dropped.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return nil
	}
	e.closed.Store(true)
	if n := e.pending.Load(); n > 0 {
		e.log.Warn("closing library engine with outstanding requests",
			zap.String("path", e.path),
			zap.Int64("pending", n))
	}
	return nil
}

func (e *Engine) deliver(r tonbridge.Response) {
	if e.closed.Load() {
		e.log.Debug("response after close dropped", zap.Uint32("request_id", r.RequestID))
		return
	}
	e.handler.HandleResponse(r)
}

func take(out *C.char, n C.uint32_t, function string) (string, error) {
	if out == nil {
		return "", errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Function(function).
			Detail("engine returned no string").
			Build()
	}
	defer C.free(unsafe.Pointer(out))
	return C.GoStringN(out, C.int(n)), nil
}

//export goTonResponse
func goTonResponse(ptr C.uintptr_t, content *C.char, n C.uint32_t, typ C.uint32_t, finished C.bool) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("response callback panicked", zap.Any("panic", r))
		}
	}()

	h := cgo.Handle(ptr)
	site, ok := h.Value().(*callSite)
	if !ok {
		Logger().Error("response callback with foreign request pointer")
		return
	}

	var params string
	if content != nil && n > 0 {
		params = C.GoStringN(content, C.int(n))
	}
	done := bool(finished)
	if done {
		h.Delete()
		site.engine.pending.Add(-1)
	}

	site.engine.deliver(tonbridge.Response{
		RequestID: site.requestID,
		Params:    params,
		Type:      tonbridge.ResponseType(typ),
		Finished:  done,
	})
}

package wasm

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
)

// Guest export names.
const (
	ExportMemory         = "memory"
	ExportAlloc          = "tc_alloc"
	ExportFree           = "tc_free"
	ExportCreateContext  = "tc_create_context"
	ExportDestroyContext = "tc_destroy_context"
	ExportRequest        = "tc_request"
	ExportRequestSync    = "tc_request_sync"
	ExportPoll           = "tc_poll"
)

// HostModule is the import module name guests use to deliver responses.
const HostModule = "tonbridge"

var requiredFuncs = []string{
	ExportAlloc,
	ExportFree,
	ExportCreateContext,
	ExportDestroyContext,
	ExportRequest,
	ExportRequestSync,
}

// Config holds configuration for engine creation
type Config struct {
	Logger *zap.Logger

	// MemoryLimitPages caps guest memory in 64KB pages. 0 keeps the wazero
	// default.
	MemoryLimitPages uint32

	// PollInterval is how often tc_poll runs while async requests are
	// outstanding. Defaults to 5ms. Ignored when the guest has no tc_poll.
	PollInterval time.Duration
}

// Engine runs a TON client engine compiled to WebAssembly.
// Guest calls are serialized; responses are delivered from inside them.
type Engine struct {
	handler tonbridge.ResponseHandler
	runtime wazero.Runtime
	mod     api.Module
	log     *zap.Logger
	ctx     context.Context
	alloc   api.Function
	free    api.Function
	create  api.Function
	destroy api.Function
	request api.Function
	reqSync api.Function
	poll    api.Function
	pending map[uint32]struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

// Load reads a wasm engine from path.
func Load(ctx context.Context, path string, h tonbridge.ResponseHandler, cfg *Config) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	return New(ctx, path, data, h, cfg)
}

// New compiles and instantiates wasmBytes. source names the module in errors.
func New(ctx context.Context, source string, wasmBytes []byte, h tonbridge.ResponseHandler, cfg *Config) (*Engine, error) {
	if h == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "response handler is nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	e := &Engine{
		handler: h,
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		log:     cfg.Logger,
		ctx:     context.Background(),
		pending: make(map[uint32]struct{}),
		stop:    make(chan struct{}),
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}

	if err := e.instantiate(ctx, source, wasmBytes); err != nil {
		e.runtime.Close(ctx)
		return nil, err
	}

	if e.poll != nil {
		interval := cfg.PollInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		e.wg.Add(1)
		go e.pollLoop(interval)
	}

	return e, nil
}

func (e *Engine) instantiate(ctx context.Context, source string, wasmBytes []byte) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		return errors.Load("instantiate wasi", err)
	}

	i32 := api.ValueTypeI32
	_, err := e.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.response), []api.ValueType{i32, i32, i32, i32, i32}, nil).
		Export("response").
		Instantiate(ctx)
	if err != nil {
		return errors.Load("instantiate host module", err)
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return errors.Load("compile "+source, err)
	}

	modCfg := wazero.NewModuleConfig().
		WithName("ton_client").
		WithStartFunctions("_initialize").
		WithStderr(os.Stderr)
	mod, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return errors.Load("instantiate "+source, err)
	}
	e.mod = mod

	var missing []string
	if mod.Memory() == nil {
		missing = append(missing, ExportMemory)
	}
	for _, name := range requiredFuncs {
		if mod.ExportedFunction(name) == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingExportsError(source, missing)
	}

	e.alloc = mod.ExportedFunction(ExportAlloc)
	e.free = mod.ExportedFunction(ExportFree)
	e.create = mod.ExportedFunction(ExportCreateContext)
	e.destroy = mod.ExportedFunction(ExportDestroyContext)
	e.request = mod.ExportedFunction(ExportRequest)
	e.reqSync = mod.ExportedFunction(ExportRequestSync)
	e.poll = mod.ExportedFunction(ExportPoll)
	return nil
}

func (e *Engine) CreateContext(config string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", errors.Closed(errors.PhaseContext, "wasm engine")
	}

	ptr, n, err := e.write(config)
	if err != nil {
		return "", err
	}
	defer e.release(ptr, n)

	res, err := e.create.Call(e.ctx, uint64(ptr), uint64(n))
	if err != nil {
		return "", errors.Wrap(errors.PhaseContext, errors.KindNative, err, ExportCreateContext+" trapped")
	}
	return e.take(res[0])
}

func (e *Engine) DestroyContext(id uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if _, err := e.destroy.Call(e.ctx, api.EncodeU32(id)); err != nil {
		e.log.Error("destroy context trapped", zap.Uint32("context", id), zap.Error(err))
	}
}

func (e *Engine) Request(id uint32, function, params string, requestID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.Closed(errors.PhaseRequest, "wasm engine")
	}

	fnPtr, fnLen, err := e.write(function)
	if err != nil {
		return err
	}
	defer e.release(fnPtr, fnLen)
	pPtr, pLen, err := e.write(params)
	if err != nil {
		return err
	}
	defer e.release(pPtr, pLen)

	e.pending[requestID] = struct{}{}
	_, err = e.request.Call(e.ctx,
		api.EncodeU32(id),
		uint64(fnPtr), uint64(fnLen),
		uint64(pPtr), uint64(pLen),
		api.EncodeU32(requestID))
	if err != nil {
		delete(e.pending, requestID)
		return errors.New(errors.PhaseRequest, errors.KindNative).
			Function(function).
			Cause(err).
			Detail("%s trapped", ExportRequest).
			Build()
	}
	return nil
}

func (e *Engine) RequestSync(id uint32, function, params string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", errors.Closed(errors.PhaseRequest, "wasm engine")
	}

	fnPtr, fnLen, err := e.write(function)
	if err != nil {
		return "", err
	}
	defer e.release(fnPtr, fnLen)
	pPtr, pLen, err := e.write(params)
	if err != nil {
		return "", err
	}
	defer e.release(pPtr, pLen)

	res, err := e.reqSync.Call(e.ctx,
		api.EncodeU32(id),
		uint64(fnPtr), uint64(fnLen),
		uint64(pPtr), uint64(pLen))
	if err != nil {
		return "", errors.New(errors.PhaseRequest, errors.KindNative).
			Function(function).
			Cause(err).
			Detail("%s trapped", ExportRequestSync).
			Build()
	}
	return e.take(res[0])
}

// Close stops polling and releases the runtime. Outstanding requests get no
// further responses.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stop)
	if n := len(e.pending); n > 0 {
		e.log.Warn("closing wasm engine with outstanding requests", zap.Int("pending", n))
	}
	e.mu.Unlock()

	e.wg.Wait()
	return e.runtime.Close(context.Background())
}

func (e *Engine) pollLoop(interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if !e.closed && len(e.pending) > 0 {
				if _, err := e.poll.Call(e.ctx); err != nil {
					e.log.Error("poll trapped", zap.Error(err))
				}
			}
			e.mu.Unlock()
		}
	}
}

// response is the host import tonbridge.response. It runs inside a guest
// call, so mu is already held.
func (e *Engine) response(_ context.Context, m api.Module, stack []uint64) {
	requestID := api.DecodeU32(stack[0])
	ptr := api.DecodeU32(stack[1])
	n := api.DecodeU32(stack[2])
	typ := tonbridge.ResponseType(api.DecodeU32(stack[3]))
	finished := api.DecodeU32(stack[4]) != 0

	mem := m.Memory()
	if mem == nil {
		e.log.Error("response from guest without memory", zap.Uint32("request_id", requestID))
		return
	}
	data, ok := mem.Read(ptr, n)
	if !ok {
		e.log.Error("response out of guest memory bounds",
			zap.Uint32("request_id", requestID),
			zap.Uint32("ptr", ptr),
			zap.Uint32("len", n))
		return
	}
	params := string(data)

	if finished {
		delete(e.pending, requestID)
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("response handler panicked", zap.Uint32("request_id", requestID), zap.Any("panic", r))
		}
	}()
	e.handler.HandleResponse(tonbridge.Response{
		RequestID: requestID,
		Params:    params,
		Type:      typ,
		Finished:  finished,
	})
}

// write copies s into guest memory allocated with tc_alloc.
func (e *Engine) write(s string) (uint32, uint32, error) {
	if len(s) == 0 {
		return 0, 0, nil
	}
	res, err := e.alloc.Call(e.ctx, uint64(len(s)))
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseRequest, errors.KindNative, err, ExportAlloc+" trapped")
	}
	ptr := api.DecodeU32(res[0])
	if !e.mod.Memory().WriteString(ptr, s) {
		return 0, 0, errors.InvalidData(errors.PhaseRequest, "tc_alloc returned out of bounds pointer")
	}
	return ptr, uint32(len(s)), nil
}

func (e *Engine) release(ptr, n uint32) {
	if n == 0 {
		return
	}
	if _, err := e.free.Call(e.ctx, uint64(ptr), uint64(n)); err != nil {
		e.log.Error("free trapped", zap.Error(err))
	}
}

// take reads a packed string result and frees it in the guest.
func (e *Engine) take(packed uint64) (string, error) {
	ptr, n := Unpack(packed)
	if n == 0 {
		return "", errors.InvalidData(errors.PhaseDecode, "engine returned an empty string")
	}
	data, ok := e.mod.Memory().Read(ptr, n)
	if !ok {
		return "", errors.InvalidData(errors.PhaseDecode, "engine returned out of bounds string")
	}
	s := string(data)
	e.release(ptr, n)
	return s, nil
}

// Pack encodes a guest string as ptr<<32 | len.
func Pack(ptr, n uint32) uint64 {
	return uint64(ptr)<<32 | uint64(n)
}

// Unpack splits a value produced by Pack.
func Unpack(v uint64) (ptr, n uint32) {
	return uint32(v >> 32), uint32(v)
}

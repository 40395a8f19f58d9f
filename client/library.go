package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
	"github.com/wippyai/tonbridge/handle"
	"github.com/wippyai/tonbridge/native"
)

// Handle identifies a client context created by a Library.
type Handle = handle.Handle

// EngineOpener creates an engine that delivers its responses to h.
type EngineOpener func(h tonbridge.ResponseHandler) (tonbridge.Engine, error)

// Library is the binding facade over one loaded engine.
// It is safe for concurrent use.
type Library struct {
	engine    tonbridge.Engine
	contexts  *handle.Table[uint32]
	dispatch  *dispatcher
	metrics   *metrics
	log       *zap.Logger
	handler   tonbridge.ResponseHandler
	unobserve func()
	closeErr  error
	nextID    atomic.Uint32
	closed    atomic.Bool
	closeOnce sync.Once
}

// LoadLibrary loads the engine at path: "inproc" for the in-process engine,
// a .wasm file, or a shared library exposing the tc_* C ABI.
func LoadLibrary(ctx context.Context, path string, opts ...Option) (*Library, error) {
	o := buildOptions(opts)
	nopts := o.native
	return newLibrary(o, func(h tonbridge.ResponseHandler) (tonbridge.Engine, error) {
		return native.Open(ctx, path, h, &nopts)
	})
}

// New creates a Library over an engine produced by open.
func New(open EngineOpener, opts ...Option) (*Library, error) {
	if open == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "engine opener is nil")
	}
	return newLibrary(buildOptions(opts), open)
}

func buildOptions(opts []Option) options {
	o := options{recent: defaultRecentFinished}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	return o
}

func newLibrary(o options, open EngineOpener) (*Library, error) {
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindRegistration, err, "register metrics")
	}
	d, err := newDispatcher(o.logger, m, o.recent)
	if err != nil {
		return nil, err
	}

	l := &Library{
		contexts: handle.NewTable[uint32](),
		dispatch: d,
		metrics:  m,
		log:      o.logger,
		handler:  o.handler,
	}
	l.unobserve = l.contexts.Subscribe(handle.ObserverFunc(func(e handle.Event) {
		switch e.Type {
		case handle.EventCreated:
			m.contexts.Inc()
		case handle.EventRemoved:
			m.contexts.Dec()
		}
	}))

	engine, err := open(l)
	if err != nil {
		d.close()
		l.unobserve()
		return nil, err
	}
	l.engine = engine
	return l, nil
}

// Engine returns the underlying engine.
func (l *Library) Engine() tonbridge.Engine {
	return l.engine
}

// CreateContext creates an engine context from a JSON config and returns its
// handle. An empty config selects engine defaults.
func (l *Library) CreateContext(config string) (Handle, error) {
	if l.closed.Load() {
		return 0, errors.Closed(errors.PhaseContext, "library")
	}

	out, err := l.engine.CreateContext(config)
	if err != nil {
		return 0, err
	}
	env, err := decodeEnvelope(errors.PhaseContext, "create_context", out)
	if err != nil {
		return 0, err
	}

	var id uint32
	switch {
	case env.Result != nil:
		if raw := bytes.TrimSpace(env.Result); len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Function("create_context").
				Detail("engine returned no context id").
				Build()
		}
		if err := json.Unmarshal(env.Result, &id); err != nil {
			return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Function("create_context").
				Cause(err).
				Detail("context id %s is not a number", env.Result).
				Build()
		}
	default:
		id = *env.Handle
	}

	h, err := l.contexts.Insert(id)
	if err != nil {
		l.engine.DestroyContext(id)
		if stderrors.Is(err, handle.ErrClosed) {
			return 0, errors.Closed(errors.PhaseContext, "library")
		}
		return 0, errors.Wrap(errors.PhaseContext, errors.KindBusy, err, "no free context slots")
	}

	l.log.Debug("context created", zap.Uint32("handle", uint32(h)), zap.Uint32("context", id))
	return h, nil
}

// DestroyContext releases the context behind h. A handle can be destroyed
// once; later calls report a stale handle.
func (l *Library) DestroyContext(h Handle) error {
	id, err := l.contexts.Remove(h)
	if err != nil {
		return l.handleErr(errors.PhaseContext, h, err)
	}
	l.engine.DestroyContext(id)
	l.log.Debug("context destroyed", zap.Uint32("handle", uint32(h)), zap.Uint32("context", id))
	return nil
}

// Request starts an asynchronous call. Responses tagged with requestID are
// delivered to consumer, or to the WithHandler default when consumer is nil.
// The id may be reused once its final response has been delivered.
func (l *Library) Request(h Handle, function, params string, requestID uint32, consumer tonbridge.ResponseHandler) error {
	if l.closed.Load() {
		return errors.Closed(errors.PhaseRequest, "library")
	}
	if consumer == nil {
		consumer = l.handler
	}
	if consumer == nil {
		return errors.InvalidInput(errors.PhaseRequest, "no response consumer")
	}

	id, err := l.contexts.Borrow(h)
	if err != nil {
		return l.handleErr(errors.PhaseRequest, h, err)
	}
	defer l.contexts.Return(h)

	if err := l.dispatch.register(requestID, consumer); err != nil {
		return err
	}
	if err := l.engine.Request(id, function, params, requestID); err != nil {
		l.dispatch.unregister(requestID)
		return err
	}
	l.metrics.requests.WithLabelValues("async").Inc()
	return nil
}

// RequestSync performs a blocking call and returns the engine's serialized
// result envelope.
func (l *Library) RequestSync(h Handle, function, params string) (string, error) {
	if l.closed.Load() {
		return "", errors.Closed(errors.PhaseRequest, "library")
	}

	id, err := l.contexts.Borrow(h)
	if err != nil {
		return "", l.handleErr(errors.PhaseRequest, h, err)
	}
	defer l.contexts.Return(h)

	start := time.Now()
	out, err := l.engine.RequestSync(id, function, params)
	l.metrics.syncLatency.Observe(time.Since(start).Seconds())
	l.metrics.requests.WithLabelValues("sync").Inc()
	return out, err
}

// HandleResponse receives responses from the engine. It is safe to call
// from any thread and never panics.
func (l *Library) HandleResponse(r tonbridge.Response) {
	defer func() {
		if p := recover(); p != nil {
			l.log.Error("response handler panicked", zap.Error(errors.Panic(errors.PhaseCallback, p)))
		}
	}()
	l.dispatch.handle(r)
}

// Close destroys every live context, closes the engine and aborts calls
// still waiting for a final response. Contexts borrowed by an in-flight
// call are destroyed once that call leaves the engine.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)

		l.contexts.Close(func(h Handle, id uint32) {
			l.engine.DestroyContext(id)
		})
		l.closeErr = l.engine.Close()
		l.dispatch.close()
		l.unobserve()
	})
	return l.closeErr
}

// Contexts returns the number of live context handles.
func (l *Library) Contexts() int {
	return l.contexts.Len()
}

// Inflight returns the number of asynchronous requests awaiting their
// final response.
func (l *Library) Inflight() int {
	return l.dispatch.inflight()
}

func (l *Library) nextRequestID() uint32 {
	for {
		if id := l.nextID.Add(1); id != 0 {
			return id
		}
	}
}

func (l *Library) handleErr(phase errors.Phase, h Handle, err error) error {
	switch {
	case stderrors.Is(err, handle.ErrStale):
		return errors.StaleHandle(phase, uint32(h))
	case stderrors.Is(err, handle.ErrOutstandingBorrow):
		return errors.Busy(phase, "context is in use by an in-flight call")
	case stderrors.Is(err, handle.ErrClosed):
		return errors.Closed(phase, "library")
	}
	return err
}

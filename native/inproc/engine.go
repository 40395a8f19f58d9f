package inproc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
)

// Error codes follow the TON client "client" module numbering.
const (
	CodeNotImplemented        = 1
	CodeInvalidConfig         = 15
	CodeInvalidContextHandle  = 17
	CodeCannotSerializeResult = 18
	CodeInvalidParams         = 23
	CodeUnknownFunction       = 25
	CodeAppRequestError       = 26
	CodeNoSuchRequest         = 27
	CodeInternalError         = 33
)

// ClientError is an error reported to callers in the engine's error envelope.
type ClientError struct {
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func toClientError(err error) *ClientError {
	if ce, ok := err.(*ClientError); ok {
		return ce
	}
	return &ClientError{Code: CodeInternalError, Message: err.Error()}
}

// State is the engine-side state of one client context.
type State struct {
	Config json.RawMessage
	ID     uint32
}

type stateKey struct{}

// ContextState returns the client context a function is running in.
func ContextState(ctx context.Context) (*State, bool) {
	s, ok := ctx.Value(stateKey{}).(*State)
	return s, ok
}

type job struct {
	fn        *Func
	state     *State
	name      string
	params    string
	context   uint32
	requestID uint32
}

// Engine runs registered Go functions as if they were native engine calls.
type Engine struct {
	handler  tonbridge.ResponseHandler
	registry *Registry
	log      *zap.Logger
	base     context.Context
	stop     context.CancelFunc
	contexts map[uint32]*State
	queue    chan job
	done     chan struct{}
	apps     map[uint32]chan appResult
	opts     options
	group    errgroup.Group
	mu       sync.RWMutex
	appMu    sync.Mutex
	nextID   uint32
	nextApp  uint32
	closed   bool
}

// New creates an engine delivering asynchronous responses to h.
// The built-in "client" module is always registered.
func New(h tonbridge.ResponseHandler, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	base, stop := context.WithCancel(context.Background())
	e := &Engine{
		handler:  h,
		registry: NewRegistry(),
		log:      o.logger,
		base:     base,
		stop:     stop,
		contexts: make(map[uint32]*State),
		queue:    make(chan job, o.queueSize),
		done:     make(chan struct{}),
		apps:     make(map[uint32]chan appResult),
		opts:     o,
	}
	e.group.SetLimit(o.workers)

	if err := e.registry.RegisterModule(&clientModule{engine: e}); err != nil {
		// The built-in module has fixed signatures.
		panic(err)
	}

	go e.dispatch()
	return e
}

// Register adds the functions of m to the engine.
func (e *Engine) Register(m Module) error {
	return e.registry.RegisterModule(m)
}

// RegisterFunc adds a single function named "module.function".
func (e *Engine) RegisterFunc(name string, fn any) error {
	return e.registry.RegisterFunc(name, fn)
}

// Registry returns the engine's function registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Contexts returns the number of live client contexts.
func (e *Engine) Contexts() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.contexts)
}

// CreateContext registers a context for config, which must be a JSON object.
// Invalid config is reported in the returned envelope with CodeInvalidConfig.
func (e *Engine) CreateContext(config string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", errors.Closed(errors.PhaseContext, "inproc engine")
	}

	raw := strings.TrimSpace(config)
	if raw == "" {
		raw = "{}"
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return errorEnvelope(&ClientError{
			Code:    CodeInvalidConfig,
			Message: fmt.Sprintf("Invalid config: %v", err),
		}), nil
	}

	e.nextID++
	st := &State{ID: e.nextID, Config: json.RawMessage(raw)}
	e.contexts[st.ID] = st

	e.log.Debug("context created", zap.Uint32("context", st.ID))
	return fmt.Sprintf(`{"result":%d}`, st.ID), nil
}

// DestroyContext forgets context id. Unknown ids are ignored.
func (e *Engine) DestroyContext(id uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.contexts[id]; !ok {
		e.log.Debug("destroy of unknown context ignored", zap.Uint32("context", id))
		return
	}
	delete(e.contexts, id)
	e.log.Debug("context destroyed", zap.Uint32("context", id))
}

// Request queues function for a worker. Responses go to the engine's
// handler; a full queue is reported as busy.
func (e *Engine) Request(id uint32, function, params string, requestID uint32) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return errors.Closed(errors.PhaseRequest, "inproc engine")
	}

	fn, _ := e.registry.Lookup(function)
	j := job{
		fn:        fn,
		state:     e.contexts[id],
		name:      function,
		params:    params,
		context:   id,
		requestID: requestID,
	}

	if fn != nil && inline[function] {
		e.run(j)
		return nil
	}

	select {
	case e.queue <- j:
		return nil
	default:
		return errors.New(errors.PhaseRequest, errors.KindBusy).
			Function(function).
			Detail("request queue full (%d)", cap(e.queue)).
			Build()
	}
}

// RequestSync runs function on the calling goroutine and returns its
// result or error envelope. Streaming functions are rejected.
func (e *Engine) RequestSync(id uint32, function, params string) (string, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return "", errors.Closed(errors.PhaseRequest, "inproc engine")
	}
	st := e.contexts[id]
	e.mu.RUnlock()

	if st == nil {
		return errorEnvelope(invalidContext(id)), nil
	}
	fn, ok := e.registry.Lookup(function)
	if !ok {
		return errorEnvelope(unknownFunction(function)), nil
	}
	if fn.Streaming() {
		return errorEnvelope(&ClientError{
			Code:    CodeNotImplemented,
			Message: fmt.Sprintf("Function %s can be called only asynchronously", function),
		}), nil
	}

	result, err := e.invoke(st, fn, params, nil)
	if err != nil {
		return errorEnvelope(toClientError(err)), nil
	}
	return resultEnvelope(result), nil
}

// Close stops accepting requests, cancels running functions and waits for
// workers to exit.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.stop()
	<-e.done
	return e.group.Wait()
}

func (e *Engine) dispatch() {
	defer close(e.done)
	for j := range e.queue {
		e.group.Go(func() error {
			e.run(j)
			return nil
		})
	}
}

func (e *Engine) run(j job) {
	respond := func(t tonbridge.ResponseType, params string) {
		e.handler.HandleResponse(tonbridge.Response{
			RequestID: j.requestID,
			Params:    params,
			Type:      t,
			Finished:  true,
		})
	}

	if j.state == nil {
		respond(tonbridge.ResponseError, errorJSON(invalidContext(j.context)))
		return
	}
	if j.fn == nil {
		respond(tonbridge.ResponseError, errorJSON(unknownFunction(j.name)))
		return
	}

	em := &Emitter{engine: e, requestID: j.requestID}
	result, err := e.invoke(j.state, j.fn, j.params, em)
	em.close()

	if err != nil {
		respond(tonbridge.ResponseError, errorJSON(toClientError(err)))
		return
	}
	respond(tonbridge.ResponseSuccess, string(result))
}

func (e *Engine) invoke(st *State, fn *Func, params string, em *Emitter) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("function panicked", zap.String("function", fn.Name), zap.Any("panic", r))
			err = &ClientError{
				Code:    CodeInternalError,
				Message: fmt.Sprintf("Function %s panicked: %v", fn.Name, r),
			}
		}
	}()

	ctx := context.WithValue(e.base, stateKey{}, st)
	if e.opts.latency > 0 {
		timer := time.NewTimer(e.opts.latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, &ClientError{Code: CodeInternalError, Message: "engine closed"}
		}
	}

	return fn.call(ctx, params, em)
}

func invalidContext(id uint32) *ClientError {
	return &ClientError{
		Code:    CodeInvalidContextHandle,
		Message: fmt.Sprintf("Invalid context handle: %d", id),
	}
}

func unknownFunction(name string) *ClientError {
	return &ClientError{
		Code:    CodeUnknownFunction,
		Message: fmt.Sprintf("Unknown function: %s", name),
	}
}

func errorJSON(ce *ClientError) string {
	data, err := json.Marshal(ce)
	if err != nil {
		data, _ = json.Marshal(&ClientError{Code: ce.Code, Message: ce.Message})
	}
	return string(data)
}

func errorEnvelope(ce *ClientError) string {
	return `{"error":` + errorJSON(ce) + `}`
}

func resultEnvelope(result json.RawMessage) string {
	return `{"result":` + string(result) + `}`
}

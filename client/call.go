package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
)

// AppHandler answers an app request the engine raises during a call.
// The returned value is sent back as the request result; a non-nil error is
// reported to the engine as an application error.
type AppHandler func(ctx context.Context, data json.RawMessage) (any, error)

// CallOption configures a Call.
type CallOption func(*Call)

// WithEvents routes intermediate app notifications and custom responses to
// fn instead of queueing them for Next. fn runs on the delivery goroutine.
func WithEvents(fn func(tonbridge.Response)) CallOption {
	return func(c *Call) { c.events = fn }
}

// WithAppHandler answers app requests with fn and resolves them through
// client.resolve_app_request.
func WithAppHandler(fn AppHandler) CallOption {
	return func(c *Call) { c.app = fn }
}

// Call is one asynchronous request and its responses.
type Call struct {
	ctx      context.Context
	lib      *Library
	events   func(tonbridge.Response)
	app      AppHandler
	final    *tonbridge.Response
	err      error
	wake     chan struct{}
	done     chan struct{}
	function string
	chunks   []tonbridge.Response
	h        Handle
	id       uint32
	mu       sync.Mutex
	read     bool
}

// Call starts function on the context h and returns the pending call.
// params is marshaled to JSON unless it is already a string, []byte or
// json.RawMessage.
func (l *Library) Call(ctx context.Context, h Handle, function string, params any, opts ...CallOption) (*Call, error) {
	p, err := encodeParams(function, params)
	if err != nil {
		return nil, err
	}

	c := &Call{
		ctx:      ctx,
		lib:      l,
		function: function,
		h:        h,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	dup := errors.Duplicate(errors.PhaseRequest, 0)
	for attempt := 0; ; attempt++ {
		c.id = l.nextRequestID()
		err = l.Request(h, function, p, c.id, c)
		if err == nil {
			return c, nil
		}
		if !stderrors.Is(err, dup) || attempt >= 8 {
			return nil, err
		}
	}
}

// ID returns the request id.
func (c *Call) ID() uint32 {
	return c.id
}

// Done is closed once the final response arrived or the call was aborted.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// HandleResponse implements tonbridge.ResponseHandler.
func (c *Call) HandleResponse(r tonbridge.Response) {
	if !r.Finished {
		switch {
		case r.Type == tonbridge.ResponseAppRequest && c.app != nil:
			go c.answer(r)
			return
		case c.events != nil && (r.Type == tonbridge.ResponseAppNotify || r.Type >= tonbridge.ResponseCustom):
			c.events(r)
			return
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final != nil || c.err != nil {
		return
	}
	if r.Finished {
		c.final = &r
		close(c.done)
	} else {
		c.chunks = append(c.chunks, r)
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Call) abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final != nil || c.err != nil {
		return
	}
	c.err = err
	close(c.done)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Next returns the next response in arrival order, ending with the final
// one. After that it returns io.EOF. Next is meant for a single reader.
func (c *Call) Next(ctx context.Context) (tonbridge.Response, error) {
	for {
		c.mu.Lock()
		switch {
		case len(c.chunks) > 0:
			r := c.chunks[0]
			c.chunks = c.chunks[1:]
			c.mu.Unlock()
			return r, nil
		case c.final != nil && !c.read:
			c.read = true
			r := *c.final
			c.mu.Unlock()
			return r, nil
		case c.final != nil:
			c.mu.Unlock()
			return tonbridge.Response{}, io.EOF
		case c.err != nil:
			err := c.err
			c.mu.Unlock()
			return tonbridge.Response{}, err
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-ctx.Done():
			return tonbridge.Response{}, ctx.Err()
		}
	}
}

// Result waits for the final response and decodes it into out.
// An Error response becomes a *errors.Error carrying the engine's code.
func (c *Call) Result(ctx context.Context, out any) error {
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	final, err := c.final, c.err
	c.mu.Unlock()
	if err != nil {
		return err
	}

	switch final.Type {
	case tonbridge.ResponseError:
		return decodeNativeError(c.function, final.Params)
	case tonbridge.ResponseNop:
		return nil
	}
	return decodeResult(c.function, []byte(final.Params), out)
}

func (c *Call) answer(r tonbridge.Response) {
	var req struct {
		Data json.RawMessage `json:"request_data"`
		ID   uint32          `json:"app_request_id"`
	}
	log := c.lib.log.With(zap.String("function", c.function), zap.Uint32("request_id", c.id))

	if err := json.Unmarshal([]byte(r.Params), &req); err != nil {
		log.Error("malformed app request", zap.Error(err))
		return
	}

	result, appErr := c.callApp(req.Data)
	if err := c.lib.ResolveAppRequest(c.ctx, c.h, req.ID, result, appErr); err != nil {
		log.Error("resolve app request failed", zap.Uint32("app_request_id", req.ID), zap.Error(err))
	}
}

func (c *Call) callApp(data json.RawMessage) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			c.lib.metrics.panics.Inc()
			err = errors.Panic(errors.PhaseCallback, p)
		}
	}()
	return c.app(c.ctx, data)
}

type appRequestResult struct {
	Result any    `json:"result,omitempty"`
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
}

type resolveAppRequestParams struct {
	Result       appRequestResult `json:"result"`
	AppRequestID uint32           `json:"app_request_id"`
}

// ResolveAppRequest answers app request appRequestID on context h with
// result, or with appErr when it is non-nil.
func (l *Library) ResolveAppRequest(ctx context.Context, h Handle, appRequestID uint32, result any, appErr error) error {
	p := resolveAppRequestParams{AppRequestID: appRequestID}
	if appErr != nil {
		p.Result = appRequestResult{Type: "Error", Text: appErr.Error()}
	} else {
		p.Result = appRequestResult{Type: "Ok", Result: result}
	}

	call, err := l.Call(ctx, h, "client.resolve_app_request", p)
	if err != nil {
		return err
	}
	return call.Result(ctx, nil)
}

package inproc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
)

type appResult struct {
	err    error
	result json.RawMessage
}

// Emitter sends intermediate responses for one asynchronous request.
// It is only valid until the function returns.
type Emitter struct {
	engine    *Engine
	requestID uint32
	mu        sync.Mutex
	done      bool
}

// Emit sends v as a custom (type 100) intermediate response.
func (em *Emitter) Emit(v any) error {
	return em.send(tonbridge.ResponseCustom, v)
}

// Notify sends v as an application notification.
func (em *Emitter) Notify(v any) error {
	return em.send(tonbridge.ResponseAppNotify, v)
}

// AppRequest asks the application for data and waits for the answer
// delivered through client.resolve_app_request.
func (em *Emitter) AppRequest(ctx context.Context, v any) (json.RawMessage, error) {
	e := em.engine
	ch := make(chan appResult, 1)

	e.appMu.Lock()
	e.nextApp++
	id := e.nextApp
	e.apps[id] = ch
	e.appMu.Unlock()

	defer func() {
		e.appMu.Lock()
		delete(e.apps, id)
		e.appMu.Unlock()
	}()

	err := em.send(tonbridge.ResponseAppRequest, struct {
		RequestData any    `json:"request_data"`
		ID          uint32 `json:"app_request_id"`
	}{RequestData: v, ID: id})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (em *Emitter) send(t tonbridge.ResponseType, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &ClientError{
			Code:    CodeCannotSerializeResult,
			Message: fmt.Sprintf("Can not serialize result: %v", err),
		}
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.done {
		return errors.New(errors.PhaseCallback, errors.KindClosed).
			Detail("request %d already finished", em.requestID).
			Build()
	}

	em.engine.handler.HandleResponse(tonbridge.Response{
		RequestID: em.requestID,
		Params:    string(data),
		Type:      t,
	})
	return nil
}

func (em *Emitter) close() {
	em.mu.Lock()
	em.done = true
	em.mu.Unlock()
}

func (e *Engine) resolveApp(id uint32, r appResult) bool {
	e.appMu.Lock()
	ch, ok := e.apps[id]
	e.appMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- r:
		return true
	default:
		return false
	}
}

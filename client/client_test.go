package client

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/config"
	"github.com/wippyai/tonbridge/errors"
	"github.com/wippyai/tonbridge/native/inproc"
)

type ticker struct{}

func (ticker) Namespace() string { return "ticker" }

type TickParams struct {
	Count int `json:"count"`
}

func (ticker) Run(ctx context.Context, p TickParams, em *inproc.Emitter) (int, error) {
	for i := 0; i < p.Count; i++ {
		if err := em.Emit(map[string]int{"tick": i}); err != nil {
			return 0, err
		}
	}
	if err := em.Notify("finished"); err != nil {
		return 0, err
	}
	return p.Count, nil
}

func (ticker) Sign(ctx context.Context, p struct {
	Payload string `json:"payload"`
}, em *inproc.Emitter) (string, error) {
	res, err := em.AppRequest(ctx, map[string]string{"type": "Sign", "payload": p.Payload})
	if err != nil {
		return "", err
	}
	var sig string
	if err := json.Unmarshal(res, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

func newClient(t *testing.T) *Client {
	t.Helper()
	lib, e := newInproc(t)
	if err := e.Register(ticker{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	c, err := lib.NewClient(config.Default())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Call(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	var v struct {
		Version string `json:"version"`
	}
	if err := c.Call(ctx, "client.version", nil, &v); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.Version != "1.0.0" {
		t.Fatalf("version = %q", v.Version)
	}

	err := c.Call(ctx, "client.nope", nil, nil)
	var te *errors.Error
	if !stderrors.As(err, &te) || te.Kind != errors.KindNative || te.Code != inproc.CodeUnknownFunction {
		t.Fatalf("expected native unknown function error, got %v", err)
	}
	if te.Function != "client.nope" {
		t.Errorf("error function = %q", te.Function)
	}
}

func TestClient_CallSync(t *testing.T) {
	c := newClient(t)

	var info struct {
		BuildNumber int `json:"build_number"`
	}
	if err := c.CallSync("client.build_info", nil, &info); err != nil {
		t.Fatalf("CallSync: %v", err)
	}

	err := c.CallSync("ticker.run", TickParams{Count: 1}, nil)
	var te *errors.Error
	if !stderrors.As(err, &te) || te.Code != inproc.CodeNotImplemented {
		t.Fatalf("streaming function over sync should fail with code 1, got %v", err)
	}

	if err := c.CallSync("client.version", make(chan int), nil); !isErr(err, errors.PhaseRequest, errors.KindInvalidInput) {
		t.Fatalf("unmarshalable params should be invalid input, got %v", err)
	}
}

func TestClient_Stream(t *testing.T) {
	c := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	call, err := c.Stream(ctx, "ticker.run", TickParams{Count: 3})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var types []tonbridge.ResponseType
	for {
		r, err := call.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if r.RequestID != call.ID() {
			t.Fatalf("response for %d on call %d", r.RequestID, call.ID())
		}
		types = append(types, r.Type)
	}

	want := []tonbridge.ResponseType{
		tonbridge.ResponseCustom,
		tonbridge.ResponseCustom,
		tonbridge.ResponseCustom,
		tonbridge.ResponseAppNotify,
		tonbridge.ResponseSuccess,
	}
	if len(types) != len(want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("types = %v, want %v", types, want)
		}
	}

	var n int
	if err := call.Result(ctx, &n); err != nil || n != 3 {
		t.Fatalf("Result = %d, %v", n, err)
	}
}

func TestClient_Events(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	var mu sync.Mutex
	var events []tonbridge.Response
	var n int
	err := c.Call(ctx, "ticker.run", TickParams{Count: 2}, &n, WithEvents(func(r tonbridge.Response) {
		mu.Lock()
		events = append(events, r)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Params != `{"tick":0}` || events[2].Type != tonbridge.ResponseAppNotify {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestClient_AppRequest(t *testing.T) {
	c := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var sig string
	err := c.Call(ctx, "ticker.sign", map[string]string{"payload": "abc"}, &sig,
		WithAppHandler(func(ctx context.Context, data json.RawMessage) (any, error) {
			var req struct {
				Type    string `json:"type"`
				Payload string `json:"payload"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, err
			}
			return req.Type + ":" + req.Payload, nil
		}))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if sig != "Sign:abc" {
		t.Fatalf("sig = %q", sig)
	}
}

func TestClient_AppRequestError(t *testing.T) {
	c := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.Call(ctx, "ticker.sign", map[string]string{"payload": "abc"}, nil,
		WithAppHandler(func(context.Context, json.RawMessage) (any, error) {
			return nil, stderrors.New("user rejected")
		}))

	var te *errors.Error
	if !stderrors.As(err, &te) || te.Code != inproc.CodeAppRequestError {
		t.Fatalf("expected app request error, got %v", err)
	}
}

func TestClient_AppRequestManual(t *testing.T) {
	c := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	call, err := c.Stream(ctx, "ticker.sign", map[string]string{"payload": "x"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	r, err := call.Next(ctx)
	if err != nil || r.Type != tonbridge.ResponseAppRequest {
		t.Fatalf("expected app request, got %+v, %v", r, err)
	}
	var req struct {
		ID uint32 `json:"app_request_id"`
	}
	json.Unmarshal([]byte(r.Params), &req)

	if err := c.ResolveAppRequest(ctx, req.ID, "manual", nil); err != nil {
		t.Fatalf("ResolveAppRequest: %v", err)
	}
	var sig string
	if err := call.Result(ctx, &sig); err != nil || sig != "manual" {
		t.Fatalf("Result = %q, %v", sig, err)
	}

	if err := c.ResolveAppRequest(ctx, req.ID, "again", nil); err == nil {
		t.Fatal("resolving twice should fail")
	}
}

func TestCall_ResultContext(t *testing.T) {
	lib, _ := newFake(t)
	h, _ := lib.CreateContext("{}")

	call, err := lib.Call(context.Background(), h, "net.wait", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := call.Result(ctx, nil); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Result = %v, want context.Canceled", err)
	}
	if _, err := call.Next(ctx); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("Next = %v, want context.Canceled", err)
	}
}

func TestCall_Nop(t *testing.T) {
	lib, fe := newFake(t)
	h, _ := lib.CreateContext("{}")

	call, _ := lib.Call(context.Background(), h, "net.unsubscribe", nil)
	fe.respond(tonbridge.Response{RequestID: call.ID(), Type: tonbridge.ResponseNop, Finished: true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out struct{}
	if err := call.Result(ctx, &out); err != nil {
		t.Fatalf("Nop result: %v", err)
	}
	select {
	case <-call.Done():
	default:
		t.Fatal("Done not closed after final")
	}
}

func TestClient_Close(t *testing.T) {
	lib, _ := newInproc(t)
	c, err := lib.NewClient(config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := c.CallSync("client.version", nil, nil); !isErr(err, errors.PhaseRequest, errors.KindStaleHandle) {
		t.Fatalf("call on closed client = %v", err)
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	lib, _ := newInproc(t)
	cfg := config.Config{Crypto: &config.CryptoConfig{MnemonicWordCount: 7}}
	if _, err := lib.NewClient(cfg); err == nil {
		t.Fatal("invalid config should be rejected")
	}
	if lib.Contexts() != 0 {
		t.Fatalf("Contexts = %d", lib.Contexts())
	}
}

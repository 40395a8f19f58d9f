package client

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
)

// aborter is implemented by consumers that want to know their request will
// never finish.
type aborter interface {
	abort(err error)
}

type delivery struct {
	consumer tonbridge.ResponseHandler
	resp     tonbridge.Response
}

// dispatcher correlates engine responses with registered consumers and
// delivers them in arrival order on a single goroutine.
type dispatcher struct {
	routes  map[uint32]tonbridge.ResponseHandler
	recent  *lru.Cache[uint32, struct{}]
	log     *zap.Logger
	metrics *metrics
	queue   []delivery
	wake    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

func newDispatcher(log *zap.Logger, m *metrics, recent int) (*dispatcher, error) {
	cache, err := lru.New[uint32, struct{}](recent)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCallback, errors.KindInvalidInput, err, "recent request cache")
	}
	d := &dispatcher{
		routes:  make(map[uint32]tonbridge.ResponseHandler),
		recent:  cache,
		log:     log,
		metrics: m,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go d.run()
	return d, nil
}

func (d *dispatcher) register(id uint32, consumer tonbridge.ResponseHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errors.Closed(errors.PhaseRequest, "dispatcher")
	}
	if _, ok := d.routes[id]; ok {
		return errors.Duplicate(errors.PhaseRequest, id)
	}
	d.routes[id] = consumer
	d.recent.Remove(id)
	d.metrics.inflight.Inc()
	return nil
}

func (d *dispatcher) unregister(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.routes[id]; ok {
		delete(d.routes, id)
		d.metrics.inflight.Dec()
	}
}

// handle routes r to its consumer. It never blocks on consumer code.
func (d *dispatcher) handle(r tonbridge.Response) {
	d.mu.Lock()
	defer d.mu.Unlock()

	consumer, ok := d.routes[r.RequestID]
	if !ok {
		reason := dropUnknown
		switch {
		case d.closed:
			reason = dropClosed
		case d.recent.Contains(r.RequestID):
			reason = dropAfterFinished
		}
		d.metrics.dropped.WithLabelValues(reason).Inc()
		d.log.Warn("response dropped",
			zap.Uint32("request_id", r.RequestID),
			zap.Stringer("type", r.Type),
			zap.Bool("finished", r.Finished),
			zap.String("reason", reason))
		return
	}

	if r.Finished {
		delete(d.routes, r.RequestID)
		d.recent.Add(r.RequestID, struct{}{})
		d.metrics.inflight.Dec()
	}

	d.queue = append(d.queue, delivery{consumer: consumer, resp: r})
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, dl := range batch {
			d.deliver(dl)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

func (d *dispatcher) deliver(dl delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.panics.Inc()
			d.log.Error("response consumer panicked",
				zap.Uint32("request_id", dl.resp.RequestID),
				zap.Stringer("type", dl.resp.Type),
				zap.Error(errors.Panic(errors.PhaseCallback, r)))
		}
	}()

	d.metrics.responses.WithLabelValues(dl.resp.Type.String()).Inc()
	dl.consumer.HandleResponse(dl.resp)
}

// close drains queued deliveries, stops the delivery goroutine and aborts
// consumers still waiting for a final response.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	pending := d.routes
	d.routes = make(map[uint32]tonbridge.ResponseHandler)
	d.metrics.inflight.Sub(float64(len(pending)))
	select {
	case d.wake <- struct{}{}:
	default:
	}
	d.mu.Unlock()

	<-d.done

	for id, consumer := range pending {
		if a, ok := consumer.(aborter); ok {
			a.abort(errors.New(errors.PhaseRequest, errors.KindClosed).
				Value(id).
				Detail("library closed before request %d finished", id).
				Build())
			continue
		}
		d.log.Debug("request abandoned at close", zap.Uint32("request_id", id))
	}
}

func (d *dispatcher) inflight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.routes)
}

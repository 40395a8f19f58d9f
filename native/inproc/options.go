package inproc

import (
	"runtime"
	"time"

	"go.uber.org/zap"
)

type options struct {
	logger    *zap.Logger
	version   string
	workers   int
	queueSize int
	latency   time.Duration
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		version:   "1.0.0",
		workers:   runtime.GOMAXPROCS(0),
		queueSize: 256,
	}
}

// Option configures an Engine.
type Option func(*options)

// WithVersion sets the version reported by client.version.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithWorkers bounds the number of concurrently running async requests.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize sets how many async requests may wait for a worker before
// Request reports the engine busy.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithLatency delays every call, simulating a remote engine.
func WithLatency(d time.Duration) Option {
	return func(o *options) { o.latency = d }
}

// WithLogger sets the engine's logger. Nil keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

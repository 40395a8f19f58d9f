package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/native"
)

const defaultRecentFinished = 4096

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	handler    tonbridge.ResponseHandler
	native     native.Options
	recent     int
}

// Option configures a Library.
type Option func(*options)

// WithLogger sets the library's logger. Defaults to Logger().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the library's metrics with r. Without it the
// collectors are still maintained but not exported.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// WithHandler sets the consumer used by Request when none is given.
func WithHandler(h tonbridge.ResponseHandler) Option {
	return func(o *options) { o.handler = h }
}

// WithNativeOptions tunes the engines created by LoadLibrary.
func WithNativeOptions(n native.Options) Option {
	return func(o *options) { o.native = n }
}

// WithRecentFinished sets how many finished request ids are remembered to
// classify late responses.
func WithRecentFinished(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.recent = n
		}
	}
}

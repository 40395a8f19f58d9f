package native

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/tonbridge/native/dl"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the native package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the logger used by Open and every engine it creates.
// This must be called before any engines are opened.
func SetLogger(l *zap.Logger) {
	logger = l
	dl.SetLogger(l)
}

//go:build !cgo || windows

package dl

import (
	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
)

// Engine is unavailable in this build.
type Engine struct{}

// Open always fails: loading shared libraries needs cgo.
func Open(path string, h tonbridge.ResponseHandler, cfg *Config) (*Engine, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "loading "+path+" without cgo")
}

func (e *Engine) CreateContext(string) (string, error) {
	return "", errors.Unsupported(errors.PhaseContext, "dl engine")
}

func (e *Engine) DestroyContext(uint32) {}

func (e *Engine) Request(uint32, string, string, uint32) error {
	return errors.Unsupported(errors.PhaseRequest, "dl engine")
}

func (e *Engine) RequestSync(uint32, string, string) (string, error) {
	return "", errors.Unsupported(errors.PhaseRequest, "dl engine")
}

func (e *Engine) Close() error { return nil }

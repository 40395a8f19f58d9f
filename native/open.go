package native

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/tonbridge"
	"github.com/wippyai/tonbridge/errors"
	"github.com/wippyai/tonbridge/native/dl"
	"github.com/wippyai/tonbridge/native/inproc"
	"github.com/wippyai/tonbridge/native/wasm"
)

// InProc is the library path selecting the in-process engine.
const InProc = "inproc"

// Options tunes the engines created by Open.
type Options struct {
	// Wasm configures engines loaded from .wasm files.
	Wasm wasm.Config

	// InProc configures the in-process engine.
	InProc []inproc.Option
}

// Open loads the engine named by path and routes its responses to h.
//
//	inproc        in-process engine with the built-in client module
//	*.wasm        WebAssembly engine run by wazero
//	anything else shared library loaded with dlopen
func Open(ctx context.Context, path string, h tonbridge.ResponseHandler, opts *Options) (tonbridge.Engine, error) {
	if h == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "response handler is nil")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "library path is empty")
	}
	if opts == nil {
		opts = &Options{}
	}

	log := Logger().With(zap.String("library", path))

	switch {
	case path == InProc:
		log.Debug("opening in-process engine")
		return inproc.New(h, append([]inproc.Option{inproc.WithLogger(log)}, opts.InProc...)...), nil

	case strings.EqualFold(filepath.Ext(path), ".wasm"):
		cfg := opts.Wasm
		if cfg.Logger == nil {
			cfg.Logger = log
		}
		log.Debug("opening wasm engine")
		e, err := wasm.Load(ctx, path, h, &cfg)
		if err != nil {
			return nil, err
		}
		return e, nil

	default:
		log.Debug("opening shared library")
		e, err := dl.Open(path, h, &dl.Config{Logger: log})
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

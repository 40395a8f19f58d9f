package client

import (
	"encoding/json"
	"strings"

	"github.com/wippyai/tonbridge/errors"
)

// nativeError is the error object engines serialize.
type nativeError struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *nativeError    `json:"error"`
	Handle *uint32         `json:"handle"`
}

// decodeEnvelope splits a {"result":...} / {"error":...} string.
func decodeEnvelope(phase errors.Phase, function, raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Function(function).
			Cause(err).
			Detail("engine returned malformed envelope %q", truncate(raw, 128)).
			Build()
	}
	if env.Error != nil {
		return env, env.Error.toError(phase, function)
	}
	if env.Result == nil && env.Handle == nil {
		return env, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Function(function).
			Detail("engine envelope has neither result nor error: %q", truncate(raw, 128)).
			Build()
	}
	return env, nil
}

func (e *nativeError) toError(phase errors.Phase, function string) *errors.Error {
	return errors.Native(phase, function, e.Code, e.Message, e.Data)
}

// decodeNativeError parses the params of an Error response.
func decodeNativeError(function, params string) *errors.Error {
	var ne nativeError
	if err := json.Unmarshal([]byte(params), &ne); err != nil || (ne.Message == "" && ne.Code == 0) {
		return errors.New(errors.PhaseRequest, errors.KindNative).
			Function(function).
			Detail("%s", strings.TrimSpace(params)).
			Build()
	}
	return ne.toError(errors.PhaseRequest, function)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// encodeParams turns a Go value into the params string for a request.
// Strings, []byte and json.RawMessage are sent as-is; nil becomes "{}".
func encodeParams(function string, params any) (string, error) {
	switch p := params.(type) {
	case nil:
		return "{}", nil
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case json.RawMessage:
		return string(p), nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", errors.New(errors.PhaseRequest, errors.KindInvalidInput).
			Function(function).
			Cause(err).
			Detail("marshal params").
			Build()
	}
	return string(data), nil
}

// decodeResult unmarshals a result payload into out. A nil out discards it.
func decodeResult(function string, data []byte, out any) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Function(function).
			Cause(err).
			Detail("unmarshal result").
			Build()
	}
	return nil
}

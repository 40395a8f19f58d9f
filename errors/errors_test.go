package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseRequest,
				Kind:     KindNative,
				Function: "crypto.sha256",
				Code:     23,
				Detail:   "invalid params",
			},
			contains: []string{"[request]", "native", "crypto.sha256", "invalid params", "code 23"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseContext,
				Kind:  KindStaleHandle,
			},
			contains: []string{"[context]", "stale_handle"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidData,
				Detail: "open library",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "invalid_data", "open library", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_NoCodeWhenZero(t *testing.T) {
	err := InvalidInput(PhaseConfig, "empty")
	if strings.Contains(err.Error(), "code") {
		t.Errorf("unexpected code in %q", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseDecode,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:    PhaseRequest,
		Kind:     KindDuplicate,
		Function: "client.version",
	}

	if !err.Is(&Error{Phase: PhaseRequest, Kind: KindDuplicate}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseContext, Kind: KindDuplicate}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseRequest, Kind: KindBusy}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseRequest, Kind: KindDuplicate}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	data := json.RawMessage(`{"core_version":"1.0"}`)
	err := New(PhaseRequest, KindNative).
		Function("net.query").
		Code(603).
		Data(data).
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "object", "null").
		Build()

	if err.Phase != PhaseRequest {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseRequest)
	}
	if err.Kind != KindNative {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNative)
	}
	if err.Function != "net.query" {
		t.Errorf("Function = %v, want net.query", err.Function)
	}
	if err.Code != 603 {
		t.Errorf("Code = %d, want 603", err.Code)
	}
	if string(err.Data) != string(data) {
		t.Errorf("Data = %s, want %s", err.Data, data)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected object, got null" {
		t.Errorf("Detail = %v, want 'expected object, got null'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("StaleHandle", func(t *testing.T) {
		err := StaleHandle(PhaseContext, 0x10001)
		if err.Kind != KindStaleHandle {
			t.Errorf("Kind = %v, want %v", err.Kind, KindStaleHandle)
		}
		if !strings.Contains(err.Detail, "0x10001") {
			t.Errorf("Detail = %v, should contain handle", err.Detail)
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		err := Duplicate(PhaseRequest, 42)
		if err.Kind != KindDuplicate {
			t.Errorf("Kind = %v, want %v", err.Kind, KindDuplicate)
		}
		if err.Value != uint32(42) {
			t.Errorf("Value = %v, want 42", err.Value)
		}
	})

	t.Run("Native", func(t *testing.T) {
		err := Native(PhaseRequest, "client.version", 25, "unknown function", nil)
		if err.Kind != KindNative || err.Code != 25 || err.Function != "client.version" {
			t.Errorf("unexpected error %+v", err)
		}
	})

	t.Run("Panic with error value", func(t *testing.T) {
		cause := errors.New("boom")
		err := Panic(PhaseCallback, cause)
		if !errors.Is(err, cause) {
			t.Error("panic error should wrap the panicked error")
		}
	})

	t.Run("Panic with string value", func(t *testing.T) {
		err := Panic(PhaseCallback, "boom")
		if !strings.Contains(err.Detail, "boom") {
			t.Errorf("Detail = %v, should contain panic value", err.Detail)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		err := Closed(PhaseRequest, "library")
		if err.Kind != KindClosed || err.Detail != "library closed" {
			t.Errorf("unexpected error %+v", err)
		}
	})

	t.Run("Registration", func(t *testing.T) {
		err := Registration("client.version", errors.New("bad signature"))
		if err.Phase != PhaseRegister || err.Function != "client.version" {
			t.Errorf("unexpected error %+v", err)
		}
	})
}

func TestMissingExportsError(t *testing.T) {
	t.Run("lists symbols", func(t *testing.T) {
		err := NewMissingExportsError("libton_client.so", []string{"tc_request_ptr", "tc_read_string"})
		msg := err.Error()
		for _, s := range []string{"libton_client.so", "missing 2", "tc_request_ptr", "tc_read_string"} {
			if !strings.Contains(msg, s) {
				t.Errorf("error %q should contain %q", msg, s)
			}
		}
	})

	t.Run("empty symbols", func(t *testing.T) {
		err := NewMissingExportsError("x", nil)
		if !strings.Contains(err.Error(), "no symbols specified") {
			t.Errorf("empty error should have specific message, got: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingExportsError("x", []string{"tc_alloc"})
		if !errors.Is(err, &MissingExportsError{}) {
			t.Error("errors.Is should match MissingExportsError")
		}
		if !errors.Is(err, &Error{Phase: PhaseLoad, Kind: KindMissingExport}) {
			t.Error("errors.Is should match load/missing_export")
		}
	})

	t.Run("copies input", func(t *testing.T) {
		in := []string{"a"}
		err := NewMissingExportsError("x", in)
		in[0] = "b"
		if err.Symbols[0] != "a" {
			t.Error("symbols should be copied")
		}
	})
}

package dl

import (
	"errors"
	"reflect"
	"testing"

	"github.com/wippyai/tonbridge"
	tberrors "github.com/wippyai/tonbridge/errors"
)

type discard struct{}

func (discard) HandleResponse(tonbridge.Response) {}

func TestMissingSymbols(t *testing.T) {
	tests := []struct {
		mask int
		want []string
	}{
		{0, nil},
		{1, []string{"tc_create_context"}},
		{1<<2 | 1<<5, []string{"tc_request_ptr", "tc_destroy_string"}},
		{63, Symbols},
	}
	for _, tt := range tests {
		got := missingSymbols(tt.mask)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("missingSymbols(%#x) = %v, want %v", tt.mask, got, tt.want)
		}
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open("libton_client.so", nil, nil); err == nil {
		t.Fatal("nil handler should fail")
	}

	_, err := Open("/nonexistent/libton_client.so", discard{}, nil)
	if err == nil {
		t.Fatal("expected error for missing library")
	}
	var te *tberrors.Error
	if !errors.As(err, &te) || te.Phase != tberrors.PhaseLoad {
		t.Fatalf("expected load phase error, got %v", err)
	}
}

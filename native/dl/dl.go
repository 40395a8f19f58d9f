package dl

import (
	"go.uber.org/zap"
)

// Symbols the engine library must export.
var Symbols = []string{
	"tc_create_context",
	"tc_destroy_context",
	"tc_request_ptr",
	"tc_request_sync",
	"tc_read_string",
	"tc_destroy_string",
}

// Config holds configuration for opening a library.
type Config struct {
	Logger *zap.Logger
}

func (c *Config) logger() *zap.Logger {
	if c == nil || c.Logger == nil {
		return Logger()
	}
	return c.Logger
}

// missingSymbols decodes the bitmask reported by tb_open.
func missingSymbols(mask int) []string {
	var missing []string
	for i, name := range Symbols {
		if mask&(1<<i) != 0 {
			missing = append(missing, name)
		}
	}
	return missing
}

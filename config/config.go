package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/tonbridge/errors"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvLibrary   = "TON_LIBRARY"
	EnvEndpoints = "TON_ENDPOINTS"
	EnvAccessKey = "TON_ACCESS_KEY"
	EnvLogLevel  = "TON_LOG_LEVEL"
)

// Config is the client configuration passed to createContext.
// Unset fields are omitted so the engine applies its own defaults.
type Config struct {
	Network          *NetworkConfig `json:"network,omitempty" yaml:"network,omitempty"`
	Crypto           *CryptoConfig  `json:"crypto,omitempty" yaml:"crypto,omitempty"`
	Abi              *AbiConfig     `json:"abi,omitempty" yaml:"abi,omitempty"`
	Boc              *BocConfig     `json:"boc,omitempty" yaml:"boc,omitempty"`
	LocalStoragePath string         `json:"local_storage_path,omitempty" yaml:"local_storage_path,omitempty"`
}

type NetworkConfig struct {
	Endpoints                []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	AccessKey                string   `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	QueriesProtocol          string   `json:"queries_protocol,omitempty" yaml:"queries_protocol,omitempty"`
	NetworkRetriesCount      int      `json:"network_retries_count,omitempty" yaml:"network_retries_count,omitempty"`
	MaxReconnectTimeout      uint32   `json:"max_reconnect_timeout,omitempty" yaml:"max_reconnect_timeout,omitempty"`
	MessageRetriesCount      int      `json:"message_retries_count,omitempty" yaml:"message_retries_count,omitempty"`
	MessageProcessingTimeout uint32   `json:"message_processing_timeout,omitempty" yaml:"message_processing_timeout,omitempty"`
	WaitForTimeout           uint32   `json:"wait_for_timeout,omitempty" yaml:"wait_for_timeout,omitempty"`
	OutOfSyncThreshold       uint32   `json:"out_of_sync_threshold,omitempty" yaml:"out_of_sync_threshold,omitempty"`
}

type CryptoConfig struct {
	HDKeyDerivationPath string `json:"hdkey_derivation_path,omitempty" yaml:"hdkey_derivation_path,omitempty"`
	MnemonicDictionary  int    `json:"mnemonic_dictionary,omitempty" yaml:"mnemonic_dictionary,omitempty"`
	MnemonicWordCount   int    `json:"mnemonic_word_count,omitempty" yaml:"mnemonic_word_count,omitempty"`
}

type AbiConfig struct {
	Workchain                          int32   `json:"workchain,omitempty" yaml:"workchain,omitempty"`
	MessageExpirationTimeout           uint32  `json:"message_expiration_timeout,omitempty" yaml:"message_expiration_timeout,omitempty"`
	MessageExpirationTimeoutGrowFactor float32 `json:"message_expiration_timeout_grow_factor,omitempty" yaml:"message_expiration_timeout_grow_factor,omitempty"`
}

type BocConfig struct {
	CacheMaxSize uint32 `json:"cache_max_size,omitempty" yaml:"cache_max_size,omitempty"`
}

// Log configures the process logger.
type Log struct {
	Level       string `yaml:"level,omitempty"`
	Development bool   `yaml:"development,omitempty"`
}

// File is the on-disk configuration: which engine to load, how to
// configure client contexts, and logging.
type File struct {
	Library string `yaml:"library,omitempty"`
	Log     Log    `yaml:"log,omitempty"`
	Client  Config `yaml:"client,omitempty"`
}

// Default returns an empty client configuration.
func Default() Config {
	return Config{}
}

// DefaultFile returns the configuration used when no file is given.
func DefaultFile() *File {
	return &File{
		Library: "inproc",
		Log:     Log{Level: "info"},
		Client:  Default(),
	}
}

// JSON renders c as the string createContext expects.
func (c Config) JSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "marshal client config")
	}
	return string(data), nil
}

// Load reads a YAML (or JSON) file, applies environment overrides and
// validates the result. Missing keys keep DefaultFile values.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}

	f := DefaultFile()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, errors.ParseFailed(path, err)
	}

	f.ApplyEnv()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// ApplyEnv overrides file values with TON_* environment variables.
func (f *File) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvLibrary)); v != "" {
		f.Library = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		f.Log.Level = v
	}
	if v := os.Getenv(EnvEndpoints); v != "" {
		var endpoints []string
		for _, ep := range strings.Split(v, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				endpoints = append(endpoints, ep)
			}
		}
		f.network().Endpoints = endpoints
	}
	if v := strings.TrimSpace(os.Getenv(EnvAccessKey)); v != "" {
		f.network().AccessKey = v
	}
}

func (f *File) network() *NetworkConfig {
	if f.Client.Network == nil {
		f.Client.Network = &NetworkConfig{}
	}
	return f.Client.Network
}

// Validate checks the file for values the engine would reject.
func (f *File) Validate() error {
	if strings.TrimSpace(f.Library) == "" {
		return errors.InvalidInput(errors.PhaseConfig, "library must be set")
	}
	if f.Log.Level != "" {
		if _, err := zapcore.ParseLevel(f.Log.Level); err != nil {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("invalid log level: %s", f.Log.Level))
		}
	}
	return f.Client.Validate()
}

var validWordCounts = map[int]bool{12: true, 15: true, 18: true, 21: true, 24: true}

// Validate checks client settings.
func (c Config) Validate() error {
	if n := c.Network; n != nil {
		for i, ep := range n.Endpoints {
			if strings.TrimSpace(ep) == "" {
				return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("network.endpoints[%d] is empty", i))
			}
		}
		switch n.QueriesProtocol {
		case "", "HTTP", "WS":
		default:
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("invalid queries protocol: %s (valid: HTTP, WS)", n.QueriesProtocol))
		}
		if n.NetworkRetriesCount < 0 || n.MessageRetriesCount < 0 {
			return errors.InvalidInput(errors.PhaseConfig, "retry counts must not be negative")
		}
	}
	if cr := c.Crypto; cr != nil {
		if cr.MnemonicWordCount != 0 && !validWordCounts[cr.MnemonicWordCount] {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("invalid mnemonic word count: %d (valid: 12, 15, 18, 21, 24)", cr.MnemonicWordCount))
		}
		if cr.MnemonicDictionary < 0 || cr.MnemonicDictionary > 8 {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("invalid mnemonic dictionary: %d", cr.MnemonicDictionary))
		}
	}
	if a := c.Abi; a != nil && a.MessageExpirationTimeoutGrowFactor < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "abi.message_expiration_timeout_grow_factor must not be negative")
	}
	return nil
}

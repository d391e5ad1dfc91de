package host

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/internal/abi"
)

// DefaultMaxRequestSize bounds invoke arguments read from guest memory.
const DefaultMaxRequestSize = 1 << 20 // 1 MB

// validate is a package-level singleton; validators cache struct metadata.
var validate = validator.New()

// Config holds the settings of a Host.
type Config struct {
	// ImportModule is the module name guests import host functions from.
	ImportModule string `validate:"required"`

	// MaxRequestSize limits invoke arguments read from guest memory.
	MaxRequestSize uint32 `validate:"gt=0"`

	// Codec names the codec shared with every guest.
	Codec string `validate:"required,oneof=json gob"`

	// VerifyHandshake reads the id back from the guest after assigning it.
	VerifyHandshake bool

	Logger *zap.Logger `validate:"required"`

	// Dispatcher serves invoke calls.
	Dispatcher Dispatcher `validate:"required"`
}

func defaultConfig() Config {
	return Config{
		ImportModule:    abi.ImportModule,
		MaxRequestSize:  DefaultMaxRequestSize,
		Codec:           codec.Default.Name(),
		VerifyHandshake: true,
		Logger:          Logger(),
		Dispatcher:      NotFound(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("host config validation failed: %w", err)
	}
	return nil
}

// Option configures a Host.
type Option func(*Config)

// WithImportModule sets the module name guests import from.
func WithImportModule(name string) Option {
	return func(c *Config) {
		c.ImportModule = name
	}
}

// WithMaxRequestSize sets the maximum invoke argument size.
func WithMaxRequestSize(size uint32) Option {
	return func(c *Config) {
		c.MaxRequestSize = size
	}
}

// WithCodec selects the codec by name.
func WithCodec(name string) Option {
	return func(c *Config) {
		c.Codec = name
	}
}

// WithHandshakeCheck enables or disables reading the id back on load.
func WithHandshakeCheck(enabled bool) Option {
	return func(c *Config) {
		c.VerifyHandshake = enabled
	}
}

// WithLogger sets the logger for diagnostics and forwarded guest records.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithDispatcher sets the service dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Config) {
		c.Dispatcher = d
	}
}

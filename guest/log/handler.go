// Package log is a slog handler that ships records to the host through the
// log proxy import.
package log

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/wasm-everything/we/guest"
	"github.com/wasm-everything/we/wire"
)

// DefaultTarget is the target of records from handlers without WithTarget.
const DefaultTarget = "guest"

// Handler implements slog.Handler by encoding each record as a
// wire.LogRecord and passing it to the host. Delivery is fire-and-forget.
type Handler struct {
	opts   handlerConfig
	attrs  string
	prefix string
}

// HandlerOption configures the Handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	level     slog.Leveler
	addSource bool
	target    string
	env       *guest.Env
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level:  slog.LevelInfo,
		target: DefaultTarget,
	}
}

// WithLevel sets the minimum level to report. Records below it are dropped
// in the guest and never cross the boundary.
func WithLevel(level slog.Leveler) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of module path, file and line.
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithTarget sets the record target.
func WithTarget(target string) HandlerOption {
	return func(c *handlerConfig) {
		c.target = target
	}
}

// WithEnv sends records through e instead of the default environment.
func WithEnv(e *guest.Env) HandlerOption {
	return func(c *handlerConfig) {
		c.env = e
	}
}

// NewHandler creates a Handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handler{opts: cfg}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

// WithAttrs returns a Handler that appends attrs to every record.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&b, h.prefix, a)
	}

	newHandler := *h
	newHandler.attrs = b.String()
	return &newHandler
}

// WithGroup returns a Handler that qualifies later attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newHandler := *h
	newHandler.prefix = h.prefix + name + "."
	return &newHandler
}

// Handle encodes record and hands it to the host. Encoding failures are
// dropped; a log call must not fail the guest.
func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	env := h.env()

	rec := h.toWire(record)
	data, err := env.Codec().Marshal(rec)
	if err != nil {
		return nil
	}
	env.LogProxy(data)
	return nil
}

func (h *Handler) env() *guest.Env {
	if h.opts.env != nil {
		return h.opts.env
	}
	return guest.Default()
}

func (h *Handler) toWire(record slog.Record) wire.LogRecord {
	var b strings.Builder
	b.WriteString(record.Message)
	b.WriteString(h.attrs)
	record.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.prefix, a)
		return true
	})

	rec := wire.LogRecord{
		Level:   wire.LevelFromSlog(record.Level),
		Target:  h.opts.target,
		Message: b.String(),
	}

	if h.opts.addSource && record.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{record.PC})
		f, _ := frames.Next()
		if f.File != "" {
			rec.File = wire.Some(f.File)
			rec.Line = wire.Some(uint32(f.Line))
		}
		if pkg := packagePath(f.Function); pkg != "" {
			rec.ModulePath = wire.Some(pkg)
		}
	}
	return rec
}

// packagePath strips the function name from a fully qualified function, so
// "example.com/m/pkg.(*T).Run" becomes "example.com/m/pkg".
func packagePath(fn string) string {
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return fn
	}
	return fn[:slash+1+dot]
}

var initOnce sync.Once

// Init installs a Handler built from opts as the slog default. Only the
// first call has any effect.
func Init(opts ...HandlerOption) {
	initOnce.Do(func() {
		slog.SetDefault(slog.New(NewHandler(opts...)))
	})
}

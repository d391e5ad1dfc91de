package host

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/wire"
)

// ByteHandler serves one method. It receives the encoded arguments and
// returns the encoded wire.Result. A returned error is sent to the guest as
// a failure.
type ByteHandler func(ctx context.Context, c codec.Codec, args []byte) ([]byte, error)

// Middleware wraps a ByteHandler. Middleware executes in FIFO order: the
// first registered wraps outermost.
type Middleware func(next ByteHandler) ByteHandler

// NewHandler wraps a typed function into a ByteHandler that decodes A and
// encodes R with the calling instance's codec.
func NewHandler[A, R any](fn func(context.Context, A) (R, error)) ByteHandler {
	return func(ctx context.Context, c codec.Codec, payload []byte) ([]byte, error) {
		var args A
		if err := c.Unmarshal(payload, &args); err != nil {
			return nil, &wire.EncodingError{Op: "decode", Err: err}
		}

		res, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}

		data, err := c.Marshal(wire.Ok(res))
		if err != nil {
			return nil, &wire.EncodingError{Op: "encode", Err: err}
		}
		return data, nil
	}
}

// Services is an immutable set of host services, addressed by service name
// and method. It is the default Dispatcher.
type Services struct {
	handlers map[string]ByteHandler
	names    []string
	inline   bool
	log      *zap.Logger
}

type servicesBuilder struct {
	handlers   map[string]ByteHandler
	middleware []Middleware
	inline     bool
	log        *zap.Logger
	errors     []error
}

// ServiceOption configures Services.
type ServiceOption func(*servicesBuilder)

// WithHandler registers h as name/method.
func WithHandler(name, method string, h ByteHandler) ServiceOption {
	return func(b *servicesBuilder) {
		if name == "" || method == "" {
			b.errors = append(b.errors, fmt.Errorf("service name and method cannot be empty"))
			return
		}
		key := serviceKey(name, method)
		if _, exists := b.handlers[key]; exists {
			b.errors = append(b.errors, fmt.Errorf("duplicate handler: %q", key))
			return
		}
		b.handlers[key] = h
	}
}

// WithMiddleware adds middleware to every handler.
func WithMiddleware(mw ...Middleware) ServiceOption {
	return func(b *servicesBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}

// WithInline serves calls on the calling goroutine, inside the guest's
// import call. By default each call is served on its own goroutine.
func WithInline(enabled bool) ServiceOption {
	return func(b *servicesBuilder) {
		b.inline = enabled
	}
}

// WithServiceLogger sets the logger used for failed calls.
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(b *servicesBuilder) {
		b.log = l
	}
}

// NewServices builds a Services. It fails if any handler is registered
// twice.
func NewServices(opts ...ServiceOption) (*Services, error) {
	b := &servicesBuilder{
		handlers: make(map[string]ByteHandler),
		log:      Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	names := make([]string, 0, len(b.handlers))
	wrapped := make(map[string]ByteHandler, len(b.handlers))
	for key, h := range b.handlers {
		names = append(names, key)
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](h)
		}
		wrapped[key] = h
	}
	sort.Strings(names)

	return &Services{
		handlers: wrapped,
		names:    names,
		inline:   b.inline,
		log:      b.log,
	}, nil
}

// Names returns the sorted name/method keys.
func (s *Services) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Has reports whether name/method is served.
func (s *Services) Has(name, method string) bool {
	_, ok := s.handlers[serviceKey(name, method)]
	return ok
}

// Dispatch implements Dispatcher.
func (s *Services) Dispatch(ctx context.Context, from *Instance, call wire.Call, r Replier) {
	if s.inline {
		r.Reply(s.Serve(ctx, from, call))
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		r.Reply(s.Serve(ctx, from, call))
	}()
}

// Serve runs the handler for call and returns the encoded reply.
func (s *Services) Serve(ctx context.Context, from *Instance, call wire.Call) []byte {
	c := from.Codec()

	h, ok := s.handlers[serviceKey(call.Name, call.Method)]
	if !ok {
		return encodeFailure(c, &wire.NotFoundError{Name: call.Name, Method: call.Method})
	}

	data, err := h(withCall(ctx, from, call), c, call.Args)
	if err != nil {
		s.log.Debug("service call failed",
			zap.Uint64("instance", from.ID()),
			zap.String("service", call.Name),
			zap.String("method", call.Method),
			zap.Error(err))
		return encodeFailure(c, err)
	}
	return data
}

func serviceKey(name, method string) string {
	return name + "/" + method
}

// PanicRecoveryMiddleware turns a panicking handler into a panic failure
// instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, c codec.Codec, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					resp = nil
					err = &wire.ErrorDetail{Message: fmt.Sprintf("panic: %v", r), Type: wire.TypePanic}
				}
			}()
			return next(ctx, c, payload)
		}
	}
}

// LoggingMiddleware logs every call at debug level.
func LoggingMiddleware(l *zap.Logger) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, c codec.Codec, payload []byte) ([]byte, error) {
			fields := []zap.Field{zap.Int("size", len(payload))}
			if call, from, ok := CallFrom(ctx); ok {
				fields = append(fields,
					zap.Uint64("instance", from.ID()),
					zap.String("service", call.Name),
					zap.String("method", call.Method))
			}

			l.Debug("invoking host service", fields...)
			resp, err := next(ctx, c, payload)
			if err != nil {
				l.Debug("host service failed", append(fields, zap.Error(err))...)
			} else {
				l.Debug("host service completed", fields...)
			}
			return resp, err
		}
	}
}

package host

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package's default logger. It is a no-op logger unless
// SetLogger was called.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the default logger used by hosts built without
// WithLogger. It must be called before New.
func SetLogger(l *zap.Logger) {
	logger = l
}

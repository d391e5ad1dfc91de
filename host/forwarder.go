package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/wire"
)

// logEntry is an undecoded guest log record and where it came from.
type logEntry struct {
	name string
	id   uint64
	data []byte
}

// forwarder re-emits guest log records through zap. Producers never block:
// the queue is unbounded and drained by a single consumer in FIFO order.
type forwarder struct {
	codec codec.Codec
	log   *zap.Logger

	mu     sync.Mutex
	queue  []logEntry
	notify chan struct{}
}

func newForwarder(c codec.Codec, log *zap.Logger) *forwarder {
	return &forwarder{
		codec:  c,
		log:    log,
		notify: make(chan struct{}, 1),
	}
}

func (f *forwarder) String() string {
	return "log-forwarder"
}

func (f *forwarder) push(e logEntry) {
	f.mu.Lock()
	f.queue = append(f.queue, e)
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Serve implements suture.Service. Records still queued when ctx ends are
// emitted before returning.
func (f *forwarder) Serve(ctx context.Context) error {
	for {
		f.drain()

		select {
		case <-f.notify:
		case <-ctx.Done():
			f.drain()
			return ctx.Err()
		}
	}
}

func (f *forwarder) drain() {
	for {
		f.mu.Lock()
		batch := f.queue
		f.queue = nil
		f.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			f.emit(e)
		}
	}
}

func (f *forwarder) emit(e logEntry) {
	var rec wire.LogRecord
	if err := f.codec.Unmarshal(e.data, &rec); err != nil {
		f.log.Error("cannot log module "+e.name,
			zap.Uint64("instance", e.id),
			zap.Error(err))
		return
	}

	l := f.log.Named(e.name)
	msg := fmt.Sprintf("[%s]: %s", rec.Location(), rec.Message)
	fields := []zap.Field{
		zap.Uint64("instance", e.id),
		zap.String("target", rec.Target),
	}
	if rec.File != nil {
		fields = append(fields, zap.String("file", *rec.File))
	}

	switch rec.Level {
	case wire.LevelError:
		l.Error(msg, fields...)
	case wire.LevelWarn:
		l.Warn(msg, fields...)
	case wire.LevelInfo:
		l.Info(msg, fields...)
	default:
		l.Debug(msg, append(fields, zap.Stringer("level", rec.Level))...)
	}
}

// eventHook logs supervisor events.
func eventHook(log *zap.Logger) suture.EventHook {
	return func(e suture.Event) {
		switch ev := e.(type) {
		case suture.EventBackoff:
			log.Debug(ev.SupervisorName+" suspended", zap.Any("event", ev.Map()))

		case suture.EventResume:
			log.Info(ev.SupervisorName+" resumed", zap.String("parent", ev.SupervisorName))

		case suture.EventServiceTerminate:
			log.Warn("encountered exception in "+ev.ServiceName,
				zap.String("parent", ev.SupervisorName),
				zap.Bool("restart", ev.Restarting),
				zap.Any("error", ev.Err))

		case suture.EventServicePanic:
			log.Error("unhandled exception in "+ev.ServiceName,
				zap.String("parent", ev.SupervisorName),
				zap.Bool("restart", ev.Restarting),
				zap.String("panic", ev.PanicMsg),
				zap.String("stack", ev.Stacktrace))

		case suture.EventStopTimeout:
			log.Error(ev.ServiceName+" did not stop in time",
				zap.String("parent", ev.SupervisorName))
		}
	}
}

// Package logupload ships structured log entries to the backend in batches.
// A process-wide uploader drains a bounded queue, flushing when the batch
// fills or the flush interval elapses, whichever comes first. Failed batches
// are requeued a bounded number of times; when the queue is full the oldest
// entries are dropped.
package logupload

import (
	"context"
	"sync"
	"time"

	"github.com/xians-ai/sdk-go/runtime/httpx"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

const uploadPath = "/api/agent/logs/upload"

// Defaults fixed by the runtime; Options may tune them.
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 60 * time.Second
	DefaultQueueCapacity = 10000
	defaultMaxRequeues   = 3
	shutdownGrace        = 5 * time.Second
)

type (
	// Entry is one uploaded log record.
	Entry struct {
		Time     time.Time      `json:"time"`
		Level    string         `json:"level"`
		Message  string         `json:"message"`
		TenantID string         `json:"tenantId,omitempty"`
		Fields   map[string]any `json:"fields,omitempty"`

		requeues int
	}

	batchEnvelope struct {
		Entries []Entry `json:"entries"`
	}

	// Options tunes the uploader.
	Options struct {
		// BatchSize flushes when this many entries accumulate. Zero means
		// 100.
		BatchSize int
		// FlushInterval flushes on this cadence regardless of batch size.
		// Zero means 60s.
		FlushInterval time.Duration
		// QueueCapacity bounds buffered entries. Zero means 10000.
		QueueCapacity int
	}

	// Uploader is the process-wide batching consumer. Producers call
	// Enqueue from any goroutine; a single consumer drains the queue.
	Uploader struct {
		http *httpx.Client
		opts Options

		mu      sync.Mutex
		queue   []Entry
		dropped int

		wake     chan struct{}
		done     chan struct{}
		stopOnce sync.Once
		stop     chan struct{}
	}
)

// NewUploader builds and starts the uploader.
func NewUploader(http *httpx.Client, opts Options) *Uploader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	u := &Uploader{
		http: http,
		opts: opts,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go u.run()
	return u
}

// Enqueue buffers one entry. When the queue is full the oldest entry is
// dropped so logging never blocks the caller.
func (u *Uploader) Enqueue(entry Entry) {
	u.mu.Lock()
	if len(u.queue) >= u.opts.QueueCapacity {
		u.queue = u.queue[1:]
		u.dropped++
	}
	u.queue = append(u.queue, entry)
	full := len(u.queue) >= u.opts.BatchSize
	u.mu.Unlock()

	if full {
		select {
		case u.wake <- struct{}{}:
		default:
		}
	}
}

// Shutdown flushes remaining entries within a bounded grace period.
func (u *Uploader) Shutdown(ctx context.Context) {
	u.stopOnce.Do(func() { close(u.stop) })
	select {
	case <-u.done:
	case <-ctx.Done():
	case <-time.After(shutdownGrace):
	}
}

func (u *Uploader) run() {
	defer close(u.done)
	ticker := time.NewTicker(u.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.stop:
			u.flush(context.Background())
			return
		case <-ticker.C:
			u.flush(context.Background())
		case <-u.wake:
			u.flush(context.Background())
		}
	}
}

// flush uploads full batches until the queue drains below one batch, then
// uploads the remainder.
func (u *Uploader) flush(ctx context.Context) {
	for {
		batch := u.takeBatch()
		if len(batch) == 0 {
			return
		}
		postCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := u.http.Post(postCtx, uploadPath, batchEnvelope{Entries: batch}, nil)
		cancel()
		if err != nil {
			u.requeue(batch)
			return
		}
	}
}

func (u *Uploader) takeBatch() []Entry {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := len(u.queue)
	if n == 0 {
		return nil
	}
	if n > u.opts.BatchSize {
		n = u.opts.BatchSize
	}
	batch := make([]Entry, n)
	copy(batch, u.queue[:n])
	u.queue = u.queue[n:]
	return batch
}

// requeue puts a failed batch back, dropping entries past their requeue cap
// and evicting the oldest entries when the queue is full.
func (u *Uploader) requeue(batch []Entry) {
	u.mu.Lock()
	defer u.mu.Unlock()
	keep := batch[:0]
	for _, e := range batch {
		e.requeues++
		if e.requeues > defaultMaxRequeues {
			u.dropped++
			continue
		}
		keep = append(keep, e)
	}
	u.queue = append(keep, u.queue...)
	if over := len(u.queue) - u.opts.QueueCapacity; over > 0 {
		u.queue = u.queue[over:]
		u.dropped += over
	}
}

// Dropped reports how many entries were lost to overflow or requeue caps.
func (u *Uploader) Dropped() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dropped
}

// Logger mirrors entries to a console logger and the uploader, each behind
// its own level threshold.
type Logger struct {
	console      telemetry.Logger
	uploader     *Uploader
	consoleLevel telemetry.Level
	serverLevel  telemetry.Level
}

// NewLogger builds the dual-sink logger.
func NewLogger(console telemetry.Logger, uploader *Uploader, consoleLevel, serverLevel telemetry.Level) *Logger {
	if console == nil {
		console = telemetry.NewNoopLogger()
	}
	return &Logger{
		console:      console,
		uploader:     uploader,
		consoleLevel: consoleLevel,
		serverLevel:  serverLevel,
	}
}

var _ telemetry.Logger = (*Logger)(nil)

func (l *Logger) Debug(ctx context.Context, msg string, keyvals ...any) {
	l.emit(ctx, telemetry.LevelDebug, msg, keyvals)
}

func (l *Logger) Info(ctx context.Context, msg string, keyvals ...any) {
	l.emit(ctx, telemetry.LevelInfo, msg, keyvals)
}

func (l *Logger) Warn(ctx context.Context, msg string, keyvals ...any) {
	l.emit(ctx, telemetry.LevelWarn, msg, keyvals)
}

func (l *Logger) Error(ctx context.Context, msg string, keyvals ...any) {
	l.emit(ctx, telemetry.LevelError, msg, keyvals)
}

func (l *Logger) emit(ctx context.Context, level telemetry.Level, msg string, keyvals []any) {
	if level >= l.consoleLevel {
		switch level {
		case telemetry.LevelDebug:
			l.console.Debug(ctx, msg, keyvals...)
		case telemetry.LevelInfo:
			l.console.Info(ctx, msg, keyvals...)
		case telemetry.LevelWarn:
			l.console.Warn(ctx, msg, keyvals...)
		default:
			l.console.Error(ctx, msg, keyvals...)
		}
	}
	if l.uploader != nil && level >= l.serverLevel {
		l.uploader.Enqueue(Entry{
			Time:    time.Now().UTC(),
			Level:   level.String(),
			Message: msg,
			Fields:  fieldsFrom(keyvals),
		})
	}
}

func fieldsFrom(keyvals []any) map[string]any {
	if len(keyvals) == 0 {
		return nil
	}
	fields := make(map[string]any, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		fields[k] = v
	}
	return fields
}

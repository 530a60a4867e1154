package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize = 512
	writeTimeout     = 250 * time.Millisecond
)

var (
	ErrLoggerClosed = errors.New("activity logger is closed")
	ErrQueueFull    = errors.New("activity log queue is full")
)

// AsyncLogger queues entries so request handlers never wait on the activity
// database. Visits are the bulk of the traffic; once the queue is three
// quarters full they are shed so account and deployment entries keep a slot.
type AsyncLogger struct {
	sink    Logger
	onError func(error)

	queue     chan Entry
	visitCap  int
	closed    bool
	mu        sync.RWMutex
	closeOnce sync.Once
	done      sync.WaitGroup
	pending   sync.WaitGroup

	written atomic.Int64
	dropped atomic.Int64
}

// Stats counts entries since start.
type Stats struct {
	Written int64
	Dropped int64
	Queued  int
}

// NewAsyncLogger starts the writer. onError, if set, sees every lost entry:
// sink failures and ErrQueueFull for shed ones.
func NewAsyncLogger(sink Logger, queueSize int, onError func(error)) *AsyncLogger {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	l := &AsyncLogger{
		sink:     sink,
		onError:  onError,
		queue:    make(chan Entry, queueSize),
		visitCap: queueSize * 3 / 4,
	}
	l.done.Add(1)
	go l.run()
	return l
}

func (l *AsyncLogger) run() {
	defer l.done.Done()
	for entry := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := l.sink.Log(ctx, entry)
		cancel()
		if err != nil {
			l.dropped.Add(1)
			if l.onError != nil {
				l.onError(err)
			}
		} else {
			l.written.Add(1)
		}
		l.pending.Done()
	}
}

func (l *AsyncLogger) Log(_ context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLoggerClosed
	}
	if entry.Operation == OperationVisit && len(l.queue) >= l.visitCap {
		return l.drop()
	}
	l.pending.Add(1)
	select {
	case l.queue <- entry:
		return nil
	default:
		l.pending.Done()
		return l.drop()
	}
}

func (l *AsyncLogger) drop() error {
	l.dropped.Add(1)
	if l.onError != nil {
		l.onError(ErrQueueFull)
	}
	return ErrQueueFull
}

func (l *AsyncLogger) Query(ctx context.Context, filter Filter) (QueryResult, error) {
	return l.sink.Query(ctx, filter)
}

// Summarize delegates to the sink. Sinks that cannot aggregate report an
// empty summary.
func (l *AsyncLogger) Summarize(ctx context.Context, now time.Time) (Summary, error) {
	if sum, ok := l.sink.(Summarizer); ok {
		return sum.Summarize(ctx, now)
	}
	return Summary{ByType: map[string]int{}}, nil
}

func (l *AsyncLogger) Stats() Stats {
	return Stats{
		Written: l.written.Load(),
		Dropped: l.dropped.Load(),
		Queued:  len(l.queue),
	}
}

// Close stops accepting entries and drains the queue.
func (l *AsyncLogger) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	return waitCtx(ctx, &l.done)
}

// WaitIdle blocks until every accepted entry has reached the sink.
func (l *AsyncLogger) WaitIdle(ctx context.Context) error {
	return waitCtx(ctx, &l.pending)
}

func waitCtx(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

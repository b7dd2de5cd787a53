package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/nsmux/internal/observe"
	"github.com/rickgao/nsmux/internal/queue"
)

// BatchSender sends a queued batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds batch writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // Max queued events before the oldest are dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats holds writer counters.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64
}

// row is one session_events record.
type row struct {
	EventID    uuid.UUID
	SessionID  string
	Kind       string
	Namespace  *string
	Error      *string
	OccurredAt time.Time
}

// Writer batches session events into the session_events table.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	db     BatchSender

	input *queue.GrowableBuffer[row]

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
}

var _ observe.Sink = (*Writer)(nil)

// NewWriter creates a Writer. Call Start before events are expected to reach
// the database; events recorded earlier stay queued.
func NewWriter(cfg Config, db BatchSender, logger *slog.Logger) *Writer {
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	initial := cfg.BatchSize
	if initial > cfg.BufferSize {
		initial = cfg.BufferSize
	}

	return &Writer{
		cfg:    cfg,
		logger: logger,
		db:     db,
		input:  queue.NewBoundedBuffer[row](initial, cfg.BufferSize, queue.OverflowDropOldest),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// Record queues ev for persistence. It never blocks.
func (w *Writer) Record(ev observe.Event) {
	w.input.Send(transform(ev))
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("audit writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop halts the background loops and writes whatever is still queued.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping audit writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("audit writer stop timed out")
		return ctx.Err()
	}

	// Final drain and flush on the caller's context.
	w.input.Close()
	for _, r := range w.input.DrainTo(0) {
		w.append(r)
	}
	w.flush(ctx)

	stats := w.Stats()
	w.logger.Info("audit writer stopped",
		"inserts", stats.Inserts,
		"errors", stats.Errors,
		"dropped", stats.Dropped,
	)
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	s := w.stats
	s.Dropped = w.input.Stats().Dropped
	return s
}

// consumeLoop moves events from the input buffer into the pending batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		r, err := w.input.ReceiveContext(w.ctx)
		if err != nil {
			return
		}
		// After cancellation Stop owns the final flush.
		if w.append(r) && w.ctx.Err() == nil {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if w.ctx.Err() != nil {
				return
			}
			w.flush(w.ctx)
		}
	}
}

// append adds r to the batch and reports whether the batch is full.
func (w *Writer) append(r row) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, r)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil && ctx.Err() != nil {
		// Cancelled mid-insert: put the rows back for the next flush.
		w.batchMu.Lock()
		w.batch = append(batch, w.batch...)
		w.batchMu.Unlock()
		w.logger.Debug("audit batch deferred", "count", len(batch), "error", err)
		return
	}
	if err != nil {
		w.logger.Error("audit batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed session events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.EventID, r.SessionID, r.Kind, r.Namespace, r.Error, r.OccurredAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

// transform converts an observe.Event to a row.
func transform(ev observe.Event) row {
	r := row{
		EventID:    uuid.New(),
		SessionID:  ev.SessionID,
		Kind:       string(ev.Kind),
		OccurredAt: ev.At,
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now()
	}
	if ev.Namespace != "" {
		ns := ev.Namespace
		r.Namespace = &ns
	}
	if ev.Err != nil {
		msg := ev.Err.Error()
		r.Error = &msg
	}
	return r
}

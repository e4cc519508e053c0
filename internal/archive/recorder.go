package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/realtime-client/internal/config"
	"github.com/rickgao/realtime-client/internal/connection"
)

// BatchSender sends a queued batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// RecorderConfig holds batching settings.
type RecorderConfig struct {
	BatchSize     int           // Rows per flush trigger
	FlushInterval time.Duration // Max time a row waits in memory

	// SkipStateChanges drops EventStateChanged rows. Transitions are still
	// visible through the other lifecycle events.
	SkipStateChanges bool
}

// DefaultRecorderConfig returns sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BatchSize:     config.DefaultBatchSize,
		FlushInterval: config.DefaultFlushInterval,
	}
}

// RecorderConfigFrom maps the archive section of a config file.
func RecorderConfigFrom(cfg config.ArchiveConfig) RecorderConfig {
	rc := DefaultRecorderConfig()
	if cfg.BatchSize > 0 {
		rc.BatchSize = cfg.BatchSize
	}
	if cfg.FlushInterval > 0 {
		rc.FlushInterval = cfg.FlushInterval
	}
	return rc
}

// RecorderMetrics tracks recorder activity.
type RecorderMetrics struct {
	Messages int64 // Message rows accepted
	Events   int64 // Lifecycle rows accepted
	Inserts  int64 // Rows written
	Flushes  int64
	Errors   int64 // Failed batches
	Lost     int64 // Rows in failed batches
}

type messageRow struct {
	ID           uuid.UUID
	ConnectionID string
	Kind         string
	Channel      string
	Payload      []byte
	ReceivedAt   time.Time
}

type eventRow struct {
	ID           uuid.UUID
	ConnectionID string
	Type         string
	State        string
	PrevState    string
	Channel      string
	Attempt      int
	Code         int
	Detail       string
	OccurredAt   time.Time
}

const insertMessageSQL = `
	INSERT INTO realtime_messages (id, connection_id, kind, channel, payload, received_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING`

const insertEventSQL = `
	INSERT INTO realtime_events (id, connection_id, event_type, state, prev_state, channel, attempt, close_code, detail, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING`

// Recorder consumes manager events and writes them in batches.
type Recorder struct {
	cfg    RecorderConfig
	logger *slog.Logger

	input <-chan connection.Event
	db    BatchSender

	messages []messageRow
	events   []eventRow
	batchMu  sync.Mutex
	metrics  RecorderMetrics

	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecorder creates a Recorder reading from input, usually a Watcher's C.
func NewRecorder(cfg RecorderConfig, input <-chan connection.Event, db BatchSender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = config.DefaultFlushInterval
	}
	return &Recorder{
		cfg:      cfg,
		logger:   logger,
		input:    input,
		db:       db,
		messages: make([]messageRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(2)
	go r.consumeLoop()
	go r.flushLoop()

	r.logger.Info("archive recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop halts consumption and writes whatever is still buffered using ctx.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping archive recorder")

	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("archive recorder stop timed out")
	}

	r.flush(ctx)
	r.logger.Info("archive recorder stopped")
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() RecorderMetrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// consumeLoop exits when the context ends or the watcher is closed. Events
// already buffered in the watcher are kept for the final flush.
func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			r.drainInput()
			return
		case ev, ok := <-r.input:
			if !ok {
				r.logger.Debug("event stream closed")
				return
			}
			if r.add(ev) {
				r.flush(r.ctx)
			}
		}
	}
}

func (r *Recorder) drainInput() {
	for {
		select {
		case ev, ok := <-r.input:
			if !ok {
				return
			}
			r.add(ev)
		default:
			return
		}
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

// add appends ev to the pending batch and reports whether it is full.
func (r *Recorder) add(ev connection.Event) bool {
	if ev.Type == connection.EventStateChanged && r.cfg.SkipStateChanges {
		return false
	}

	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	if ev.Type == connection.EventMessage && ev.Message != nil {
		r.messages = append(r.messages, transformMessage(ev.Message))
		r.metrics.Messages++
	} else {
		r.events = append(r.events, transformEvent(ev))
		r.metrics.Events++
	}
	return len(r.messages)+len(r.events) >= r.cfg.BatchSize
}

func transformMessage(msg *connection.Message) messageRow {
	return messageRow{
		ID:           uuid.Must(uuid.NewV7()),
		ConnectionID: msg.ConnectionID,
		Kind:         msg.Kind,
		Channel:      msg.Channel,
		Payload:      msg.Payload,
		ReceivedAt:   msg.ReceivedAt,
	}
}

func transformEvent(ev connection.Event) eventRow {
	row := eventRow{
		ID:           uuid.Must(uuid.NewV7()),
		ConnectionID: ev.ConnectionID,
		Type:         ev.Type.String(),
		Channel:      ev.Channel,
		Attempt:      ev.Attempt,
		Code:         ev.Code,
		OccurredAt:   ev.Time,
	}
	if ev.Type == connection.EventStateChanged {
		row.State = ev.State.String()
		row.PrevState = ev.PrevState.String()
	}
	if ev.Err != nil {
		row.Detail = ev.Err.Error()
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now()
	}
	return row
}

// flush writes the pending rows. A failed batch is counted and dropped.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.messages) == 0 && len(r.events) == 0 {
		r.batchMu.Unlock()
		return
	}
	messages, events := r.messages, r.events
	r.messages = make([]messageRow, 0, r.cfg.BatchSize)
	r.events = nil
	r.batchMu.Unlock()

	total := len(messages) + len(events)
	start := time.Now()

	inserted, err := r.batchInsert(ctx, messages, events)

	r.batchMu.Lock()
	if err != nil {
		r.metrics.Errors++
		r.metrics.Lost += int64(total)
	} else {
		r.metrics.Inserts += int64(inserted)
		r.metrics.Flushes++
	}
	r.batchMu.Unlock()

	if err != nil {
		r.logger.Error("archive batch insert failed", "error", err, "count", total)
		return
	}
	r.logger.Debug("flushed archive batch",
		"messages", len(messages),
		"events", len(events),
		"duration", time.Since(start),
	)
}

func (r *Recorder) batchInsert(ctx context.Context, messages []messageRow, events []eventRow) (int, error) {
	if r.db == nil {
		return 0, errNoDatabase
	}

	batch := &pgx.Batch{}
	for _, m := range messages {
		batch.Queue(insertMessageSQL, m.ID, m.ConnectionID, m.Kind, m.Channel, m.Payload, m.ReceivedAt)
	}
	for _, e := range events {
		batch.Queue(insertEventSQL, e.ID, e.ConnectionID, e.Type, e.State, e.PrevState, e.Channel, e.Attempt, e.Code, e.Detail, e.OccurredAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range batch.Len() {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

package archive

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB records queued statements and answers every Exec with one row.
type fakeDB struct {
	mu      sync.Mutex
	queries []*pgx.QueuedQuery
	batches int
	execErr error
	execs   []string
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	f.queries = append(f.queries, b.QueuedQueries...)
	return &fakeResults{err: f.execErr}
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) snapshot() (int, []*pgx.QueuedQuery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches, append([]*pgx.QueuedQuery(nil), f.queries...)
}

type fakeResults struct {
	err error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (r *fakeResults) QueryRow() pgx.Row {
	return nil
}

func (r *fakeResults) Close() error {
	return nil
}

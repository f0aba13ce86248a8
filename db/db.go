package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tk21111/drawsync/config"
	"github.com/Tk21111/drawsync/internal/logx"
	"go.uber.org/zap"
)

// Operation Types
const (
	OpSessionOpen = iota
	OpSessionClose
	OpFlush
)

var ErrWriterClosed = errors.New("audit writer closed")

type DbJob struct {
	Type    int
	Session config.Session
	Result  chan error
}

// Writer owns the audit database. All writes go through one goroutine;
// reads hit the pool directly.
type Writer struct {
	db   *sql.DB
	opCh chan DbJob
	done chan struct{}
	log  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewWriter(dbPath string) (*Writer, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	w := &Writer{
		db:   db,
		opCh: make(chan DbJob, 10000),
		done: make(chan struct{}),
		log:  logx.L.Named("audit"),
	}

	ready := make(chan error, 1)
	go w.writerLoop(ready)
	if err := <-ready; err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

func (w *Writer) writerLoop(ready chan<- error) {
	defer close(w.done)

	stmtOpen, err := w.db.Prepare(`
        INSERT INTO connections
        (id, remote_addr, user_agent, opened_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO NOTHING
    `)
	if err != nil {
		ready <- err
		return
	}
	defer stmtOpen.Close()

	stmtClose, err := w.db.Prepare(`
        UPDATE connections
        SET
            closed_at = ?,
            events_in = ?,
            events_out = ?,
            dropped = ?
        WHERE id = ?
    `)
	if err != nil {
		ready <- err
		return
	}
	defer stmtClose.Close()

	ready <- nil

	// --- Main Loop ---
	for job := range w.opCh {
		switch job.Type {

		case OpSessionOpen:
			s := job.Session
			_, err := stmtOpen.Exec(
				s.ID, s.RemoteAddr, s.UserAgent, s.OpenedAt.UnixMilli(),
			)
			if err != nil {
				w.log.Error("session_open", zap.String("conn_id", s.ID), zap.Error(err))
			}

		case OpSessionClose:
			s := job.Session
			_, err := stmtClose.Exec(
				s.ClosedAt.UnixMilli(),
				s.EventsIn, s.EventsOut, s.Dropped,
				s.ID,
			)
			if err != nil {
				w.log.Error("session_close", zap.String("conn_id", s.ID), zap.Error(err))
			}

		case OpFlush:
			job.Result <- nil
		}
	}
}

// --- Public Write Methods ---

func (w *Writer) RecordOpen(s config.Session) {
	w.enqueue(DbJob{Type: OpSessionOpen, Session: s})
}

func (w *Writer) RecordClose(s config.Session) {
	w.enqueue(DbJob{Type: OpSessionClose, Session: s})
}

func (w *Writer) enqueue(job DbJob) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.opCh <- job:
	default:
		// channel full, audit is best effort
		w.log.Warn("audit_queue_full", zap.String("conn_id", job.Session.ID))
	}
}

// Flush waits until every job queued before it has been written.
func (w *Writer) Flush(ctx context.Context) error {
	result := make(chan error, 1)

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWriterClosed
	}
	select {
	case w.opCh <- DbJob{Type: OpFlush, Result: result}:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending jobs and closes the database. Later records are
// ignored.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	w.closed = true
	close(w.opCh)
	w.mu.Unlock()

	<-w.done
	return w.db.Close()
}

// --- Read Methods ---

func (w *Writer) RecentSessions(ctx context.Context, limit int) ([]config.Session, error) {
	rows, err := w.db.QueryContext(ctx, `
        SELECT id, remote_addr, user_agent, opened_at, closed_at,
               events_in, events_out, dropped
        FROM connections
        ORDER BY opened_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []config.Session{}

	for rows.Next() {
		var (
			s        config.Session
			openedAt int64
			closedAt sql.NullInt64
		)
		if err := rows.Scan(
			&s.ID, &s.RemoteAddr, &s.UserAgent, &openedAt, &closedAt,
			&s.EventsIn, &s.EventsOut, &s.Dropped,
		); err != nil {
			return nil, err
		}

		s.OpenedAt = time.UnixMilli(openedAt)
		if closedAt.Valid {
			s.ClosedAt = time.UnixMilli(closedAt.Int64)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func (w *Writer) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := w.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM connections WHERE closed_at IS NULL
    `).Scan(&n)
	return n, err
}

// Package sqlstore serializes every access to the embedded database through
// one goroutine that owns the connection. Callers in any goroutine get a
// synchronous-looking API: writes are fire-and-forget, reads block only
// while their rows are consumed.
package sqlstore

import (
	"context"
	"database/sql"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/fifo"
)

type opKind int

const (
	opExec opKind = iota
	opExecMany
	opQuery
	opCommit
	opClose
)

type request struct {
	kind  opKind
	query string
	args  []any
	many  [][]any
	resp  chan []Row
}

// Store is the single-writer executor in front of a *sql.DB.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	queue  *fifo.Queue[*request]
	done   chan struct{}
	once   sync.Once
}

// New takes ownership of db and starts the executor goroutine. No other
// code may use db afterwards.
func New(db *sql.DB, logger *zap.Logger) *Store {
	s := &Store{
		db:     db,
		logger: logger.Named("sqlstore"),
		queue:  fifo.New[*request](),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Execute enqueues a statement and returns immediately. Failures are
// logged by the executor and never reported to the caller.
func (s *Store) Execute(query string, args ...any) {
	s.queue.Put(&request{kind: opExec, query: query, args: args})
}

// ExecuteMany runs one statement once per argument set inside a single
// transaction.
func (s *Store) ExecuteMany(query string, argSets [][]any) {
	s.queue.Put(&request{kind: opExecMany, query: query, many: argSets})
}

// Select enqueues a query right away and returns a sequence over its rows.
// Statements enqueued earlier by the same goroutine are applied before the
// query runs. A failing query yields no rows.
func (s *Store) Select(query string, args ...any) iter.Seq[Row] {
	resp := make(chan []Row, 1)
	s.queue.Put(&request{kind: opQuery, query: query, args: args, resp: resp})

	return func(yield func(Row) bool) {
		for _, row := range s.await(resp) {
			if !yield(row) {
				return
			}
		}
	}
}

// SelectOne returns the first row of a query, or false when there is none.
func (s *Store) SelectOne(query string, args ...any) (Row, bool) {
	for row := range s.Select(query, args...) {
		return row, true
	}
	return nil, false
}

// Flush blocks until every request enqueued before it has been processed.
func (s *Store) Flush() {
	s.SelectOne("SELECT 1")
}

// Commit enqueues an explicit commit request. The connection runs in
// autocommit mode so the executor only acknowledges it.
func (s *Store) Commit() {
	s.queue.Put(&request{kind: opCommit})
}

// Close enqueues the terminal request and waits for the executor to close
// the connection. Requests enqueued after Close are dropped.
func (s *Store) Close() {
	s.once.Do(func() {
		s.queue.Put(&request{kind: opClose})
	})
	<-s.done
}

// Done is closed once the executor has exited.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

func (s *Store) await(resp chan []Row) []Row {
	select {
	case rows := <-resp:
		return rows
	case <-s.done:
		select {
		case rows := <-resp:
			return rows
		default:
			return nil
		}
	}
}

func (s *Store) run() {
	defer close(s.done)
	for {
		req, err := s.queue.Get(context.Background())
		if err != nil {
			return
		}
		switch req.kind {
		case opExec:
			if _, err := s.db.Exec(req.query, req.args...); err != nil {
				s.logger.Error("execute failed", zap.String("query", req.query), zap.Error(err))
			}
		case opExecMany:
			s.execMany(req)
		case opQuery:
			req.resp <- s.query(req)
		case opCommit:
			s.logger.Debug("commit requested in autocommit mode")
		case opClose:
			if err := s.db.Close(); err != nil {
				s.logger.Error("close database", zap.Error(err))
			}
			return
		}
	}
}

func (s *Store) execMany(req *request) {
	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error("begin transaction", zap.Error(err))
		return
	}
	stmt, err := tx.Prepare(req.query)
	if err != nil {
		tx.Rollback()
		s.logger.Error("prepare failed", zap.String("query", req.query), zap.Error(err))
		return
	}
	defer stmt.Close()

	for _, args := range req.many {
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			s.logger.Error("execute many failed", zap.String("query", req.query), zap.Error(err))
			return
		}
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("commit failed", zap.Error(err))
	}
}

func (s *Store) query(req *request) []Row {
	rows, err := s.db.Query(req.query, req.args...)
	if err != nil {
		s.logger.Error("select failed", zap.String("query", req.query), zap.Error(err))
		return nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		s.logger.Error("read columns", zap.Error(err))
		return nil
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			s.logger.Error("scan row", zap.String("query", req.query), zap.Error(err))
			return nil
		}
		out = append(out, Row(values))
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("iterate rows", zap.String("query", req.query), zap.Error(err))
		return nil
	}
	return out
}

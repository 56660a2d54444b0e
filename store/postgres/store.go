// Package postgres provides a PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/forum/store"
)

// Compile-time checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

// PostgreSQL error codes mapped to store sentinels.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	queries

	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	s := &Store{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
	s.queries = queries{
		ext:     db,
		t:       newTables(o.prefix),
		timeout: o.timeout,
		check:   s.checkConnected,
	}
	return s
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Connect verifies the connection and initializes the schema.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "prefix", s.opts.prefix)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// Atomic runs fn inside a database transaction.
// Serialization failures and deadlocks are reported as store.ErrTransactionFailed.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := s.checkConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.txTimeout)
	defer cancel()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	t := &tx{queries: queries{
		ext:   sqlTx,
		t:     s.queries.t,
		check: func() error { return nil },
	}}

	if err := fn(t); err != nil {
		return mapError(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", store.ErrTransactionFailed, mapError(err))
	}
	return nil
}

// mapError translates driver errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrDuplicateEntry, pqErr.Message)
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s", store.ErrTransactionFailed, pqErr.Message)
		}
	}
	return err
}

// tables holds the fully qualified table names.
type tables struct {
	categories string
	boards     string
	members    string
	topics     string
	messages   string
	readLogs   string
	boardMarks string
	polls      string
	choices    string
	votes      string
	reports    string
	activity   string
}

func newTables(prefix string) tables {
	return tables{
		categories: prefix + "categories",
		boards:     prefix + "boards",
		members:    prefix + "members",
		topics:     prefix + "topics",
		messages:   prefix + "messages",
		readLogs:   prefix + "read_logs",
		boardMarks: prefix + "board_marks",
		polls:      prefix + "polls",
		choices:    prefix + "poll_choices",
		votes:      prefix + "poll_votes",
		reports:    prefix + "reports",
		activity:   prefix + "member_activity",
	}
}

// ensureSchema creates the required tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	t := s.queries.t
	createTables := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			cat_order INTEGER NOT NULL DEFAULT 0,
			can_collapse BOOLEAN NOT NULL DEFAULT TRUE
		)`, t.categories),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			category_id BIGINT NOT NULL DEFAULT 0,
			parent_id BIGINT NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			board_order INTEGER NOT NULL DEFAULT 0,
			member_groups TEXT NOT NULL DEFAULT '',
			redirect_url TEXT NOT NULL DEFAULT '',
			num_topics BIGINT NOT NULL DEFAULT 0,
			num_posts BIGINT NOT NULL DEFAULT 0,
			last_message_id BIGINT NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, t.boards),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			primary_group INTEGER NOT NULL DEFAULT 0,
			post_group INTEGER NOT NULL DEFAULT 0,
			additional_groups TEXT NOT NULL DEFAULT '',
			posts BIGINT NOT NULL DEFAULT 0
		)`, t.members),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			board_id BIGINT NOT NULL,
			first_message_id BIGINT NOT NULL DEFAULT 0,
			last_message_id BIGINT NOT NULL DEFAULT 0,
			starter_id BIGINT NOT NULL DEFAULT 0,
			poll_id BIGINT NOT NULL DEFAULT 0,
			is_sticky BOOLEAN NOT NULL DEFAULT FALSE,
			is_locked BOOLEAN NOT NULL DEFAULT FALSE,
			num_replies BIGINT NOT NULL DEFAULT 0,
			num_views BIGINT NOT NULL DEFAULT 0
		)`, t.topics),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			topic_id BIGINT NOT NULL,
			board_id BIGINT NOT NULL,
			poster_id BIGINT NOT NULL DEFAULT 0,
			poster_name TEXT NOT NULL DEFAULT '',
			poster_email TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			posted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			modified_at TIMESTAMPTZ,
			modified_by TEXT NOT NULL DEFAULT '',
			approved BOOLEAN NOT NULL DEFAULT TRUE
		)`, t.messages),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			member_id BIGINT NOT NULL,
			topic_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			PRIMARY KEY (member_id, topic_id)
		)`, t.readLogs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			member_id BIGINT NOT NULL,
			board_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			PRIMARY KEY (member_id, board_id)
		)`, t.boardMarks),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			topic_id BIGINT NOT NULL,
			question TEXT NOT NULL DEFAULT '',
			member_id BIGINT NOT NULL DEFAULT 0,
			poster_name TEXT NOT NULL DEFAULT '',
			max_votes INTEGER NOT NULL DEFAULT 1,
			expires_at TIMESTAMPTZ NOT NULL,
			hide_results INTEGER NOT NULL DEFAULT 0,
			change_vote BOOLEAN NOT NULL DEFAULT FALSE,
			voting_locked BOOLEAN NOT NULL DEFAULT FALSE
		)`, t.polls),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			poll_id BIGINT NOT NULL,
			choice_id INTEGER NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			votes BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (poll_id, choice_id)
		)`, t.choices),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			poll_id BIGINT NOT NULL,
			member_id BIGINT NOT NULL,
			choice_id INTEGER NOT NULL,
			PRIMARY KEY (poll_id, member_id, choice_id)
		)`, t.votes),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			message_id BIGINT NOT NULL,
			topic_id BIGINT NOT NULL DEFAULT 0,
			board_id BIGINT NOT NULL DEFAULT 0,
			reporter_id BIGINT NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			closed BOOLEAN NOT NULL DEFAULT FALSE,
			closed_by BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ
		)`, t.reports),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			member_id BIGINT PRIMARY KEY,
			action JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, t.activity),
	}

	for _, stmt := range createTables {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_board ON %s(board_id, is_sticky DESC, last_message_id DESC)`, t.topics, t.topics),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_topic ON %s(topic_id, id)`, t.messages, t.messages),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_board ON %s(board_id, id DESC)`, t.messages, t.messages),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_poster ON %s(poster_id)`, t.messages, t.messages),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_topic ON %s(topic_id)`, t.readLogs, t.readLogs),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_closed ON %s(closed, id DESC)`, t.reports, t.reports),
	}

	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}

	// One open report per (message, reporter).
	openReportIdx := fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_open
		ON %s(message_id, reporter_id)
		WHERE NOT closed
	`, t.reports, t.reports)
	if _, err := s.db.ExecContext(ctx, openReportIdx); err != nil {
		return fmt.Errorf("create open report index: %w", err)
	}

	return nil
}

package sqlstorage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"notification/internal/domain/models"
	"notification/internal/storage"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

type Dialect int

const (
	Postgres Dialect = iota
	MySQL
	SQLite
)

const eventsTable = "processed_events"

type SQLStorage struct {
	log     *slog.Logger
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

var _ storage.Storage = (*SQLStorage)(nil)

// New opens and pings the database behind driver/dsn. Supported drivers are
// pgx, mysql and sqlite3.
func New(log *slog.Logger, driver string, dsn string) (*SQLStorage, error) {
	const op = "sqlstorage.New"

	db, err := sql.Open(DriverName(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	s := NewWithDB(log, db, driver)
	log.With(slog.String("op", op)).
		Info("database connected", slog.String("driver", driver))

	return s, nil
}

// NewWithDB wraps an already opened database.
func NewWithDB(log *slog.Logger, db *sql.DB, driver string) *SQLStorage {
	dialect := detectDialect(driver)

	// sqlite allows a single writer; queueing on one connection beats
	// SQLITE_BUSY under concurrent consumers.
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}

	return &SQLStorage{
		log:     log,
		db:      db,
		dialect: dialect,
		builder: newBuilder(dialect),
	}
}

// DriverName maps a configured driver to the name registered with
// database/sql. "postgres" is served by pgx.
func DriverName(driver string) string {
	if driver == "postgres" {
		return "pgx"
	}
	return driver
}

func newBuilder(dialect Dialect) sq.StatementBuilderType {
	if dialect == Postgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func detectDialect(driver string) Dialect {
	switch driver {
	case "postgres", "pgx", "pgx/v5":
		return Postgres
	case "mysql":
		return MySQL
	default:
		return SQLite
	}
}

// SaveEvent inserts the event unless a row with the same
// (user_id, event_type, message) exists. The insert runs in its own
// transaction; the unique constraint decides between concurrent writers.
func (s *SQLStorage) SaveEvent(ctx context.Context, event models.ProcessedEvent) (res storage.SaveResult, err error) {
	const op = "sqlstorage.SaveEvent"

	payload, err := payloadArg(event.Payload)
	if err != nil {
		return 0, fmt.Errorf("%s: encode payload: %w", op, err)
	}

	query, args, err := s.insertQuery(event, payload).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: build query: %w", op, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.wrapErr(op+": begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			res = 0
			err = s.wrapErr(op+": commit tx", commitErr)
		}
	}()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, s.wrapErr(op, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, s.wrapErr(op+": rows affected", err)
	}

	if affected == 0 {
		s.log.Debug("event already stored",
			slog.String("op", op),
			slog.String("user_id", event.UserID),
			slog.String("event_type", event.EventType),
		)
		return storage.AlreadyPresent, nil
	}

	return storage.Inserted, nil
}

func (s *SQLStorage) insertQuery(event models.ProcessedEvent, payload any) sq.InsertBuilder {
	q := s.builder.
		Insert(eventsTable).
		Columns("user_id", "event_type", "message", "payload", "processed_at").
		Values(event.UserID, event.EventType, event.Message, payload, event.ProcessedAt.UTC())

	switch s.dialect {
	case MySQL:
		return q.Suffix("ON DUPLICATE KEY UPDATE user_id = user_id")
	default:
		return q.Suffix("ON CONFLICT (user_id, event_type, message) DO NOTHING")
	}
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	const op = "sqlstorage.Ping"

	if err := s.db.PingContext(ctx); err != nil {
		return s.wrapErr(op, err)
	}
	return nil
}

func (s *SQLStorage) DB() *sql.DB {
	return s.db
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) wrapErr(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func payloadArg(p models.Payload) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "53300", "57P01", "57P02", "57P03":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	if pgconn.Timeout(err) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// lock wait timeout, deadlock
		return mysqlErr.Number == 1205 || mysqlErr.Number == 1213
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

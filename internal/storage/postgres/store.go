// Package postgres хранит каталог, корзины, заказы и платежи в PostgreSQL через pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

// opTimeout ограничивает одиночные запросы вне транзакции (outbox, журнал webhook).
const opTimeout = 5 * time.Second

const (
	pingTimeout  = 5 * time.Second
	maxOpenConns = 25
	connLifetime = 30 * time.Minute
	connIdleTime = 5 * time.Minute

	sqlStateUniqueViolation = "23505"
)

var errStoreClosed = errors.New("postgres store is not initialized")

// querier - общее подмножество *sql.DB и *sql.Tx, с которым работают репозитории.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store - пул соединений и менеджер транзакций.
type Store struct {
	db *sql.DB
}

// Open разбирает DSN, открывает пул и проверяет связь с базой.
func Open(ctx context.Context, dsn string) (*Store, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(connLifetime)
	db.SetConnMaxIdleTime(connIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping %s@%s: %w", connCfg.User, connCfg.Host, err)
	}
	return store, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// WithinTx выполняет fn в транзакции READ COMMITTED. Резервирование склада опирается на
// условный UPDATE, поэтому более строгая изоляция не требуется.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if s == nil || s.db == nil {
		return errStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	if err := fn(ctx, repositoriesFor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("postgres: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func repositoriesFor(q querier) domain.Repositories {
	return domain.Repositories{
		Products: &productRepository{q: q},
		Users:    &userRepository{q: q},
		Carts:    &cartRepository{q: q},
		Orders:   &orderRepository{q: q},
		Payments: &paymentRepository{q: q},
		Timeline: &timelineRepository{q: q},
	}
}

// EnsureSchema применяет все неприменённые миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}

var _ domain.TxManager = (*Store)(nil)

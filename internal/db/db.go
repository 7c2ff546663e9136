// Package db provides PostgreSQL-backed repository implementations for
// TipKoro. Repositories accept a DBTX so the same code runs against the pool
// or inside a transaction. Request handlers never touch the pool directly:
// they go through ScopedStore, which opens a transaction and pins the caller's
// identity for row-level security before handing out repositories.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tipkoro/internal/config"
	"tipkoro/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Connect opens a pool tuned by cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Store binds every repository to one DBTX. It implements
// types.RepositoryRegistry.
type Store struct {
	db DBTX
}

// NewStore creates a Store over db.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Profiles() types.ProfileRepository           { return NewProfileRepository(s.db) }
func (s *Store) Subscriptions() types.SubscriptionRepository { return NewSubscriptionRepository(s.db) }
func (s *Store) Signups() types.SignupRepository             { return NewSignupRepository(s.db) }
func (s *Store) Tips() types.TipRepository                   { return NewTipRepository(s.db) }
func (s *Store) Withdrawals() types.WithdrawalRepository     { return NewWithdrawalRepository(s.db) }
func (s *Store) Intents() types.IntentRepository             { return NewIntentRepository(s.db) }

// Row-level security roles set per transaction.
const (
	roleIdentity = "identity"
	roleService  = "service"
)

const setScopeSQL = `SELECT set_config('app.identity_id', $1, true), set_config('app.role', $2, true)`

// ScopedStore implements types.ScopedStoreFactory. Each call runs fn in its
// own transaction with app.identity_id and app.role set locally, so the
// settings vanish at commit and never leak across pooled connections.
type ScopedStore struct {
	pool   TxBeginner
	logger *slog.Logger
}

// NewScopedStore creates a ScopedStore over pool.
func NewScopedStore(pool TxBeginner, logger *slog.Logger) *ScopedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopedStore{pool: pool, logger: logger}
}

// ForIdentity runs fn with row access limited to identityID.
func (s *ScopedStore) ForIdentity(ctx context.Context, identityID string, fn types.StoreFunc) error {
	if identityID == "" {
		return types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil)
	}
	return s.run(ctx, identityID, roleIdentity, fn)
}

// AsService runs fn with service privileges. Reserved for trusted
// server-side work such as webhook processing.
func (s *ScopedStore) AsService(ctx context.Context, fn types.StoreFunc) error {
	return s.run(ctx, "", roleService, fn)
}

func (s *ScopedStore) run(ctx context.Context, identityID, role string, fn types.StoreFunc) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.WarnContext(ctx, "transaction rollback failed", "error", rbErr)
			}
		}
	}()

	if _, err = tx.Exec(ctx, setScopeSQL, identityID, role); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to scope transaction", err)
	}
	if err = fn(ctx, NewStore(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// nilIfEmpty returns nil for "", so nullable text columns store NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nilIfZeroTime returns nil for the zero time so the DB default applies.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isUniqueViolation reports whether err is SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var (
	_ types.RepositoryRegistry = (*Store)(nil)
	_ types.ScopedStoreFactory = (*ScopedStore)(nil)
	_ TxBeginner               = (*pgxpool.Pool)(nil)
)

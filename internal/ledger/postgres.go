// Package ledger implements the wallet balance and transaction store on PostgreSQL.
package ledger

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/shabalink/vtu-engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAccountNotFound is returned when no wallet exists for the user.
var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientFunds is returned when a debit would take the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// PostgresLedger stores wallet balances and the transaction log in PostgreSQL.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates the ledger and brings the schema up to date.
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l := &PostgresLedger{pool: pool}

	if err := l.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return l, nil
}

func (l *PostgresLedger) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(l.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry reruns fn on serialization failures and deadlocks, which can show
// up when concurrent purchases hit the same account row.
func (l *PostgresLedger) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close closes the connection pool.
func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}

// GetAccount loads the wallet state for a user.
func (l *PostgresLedger) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT user_id, balance, pin_hash, tier, created_at FROM accounts WHERE user_id = $1`,
		userID,
	)

	var a model.Account
	var tier string
	err := row.Scan(&a.UserID, &a.Balance, &a.PINHash, &tier, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	a.Tier = model.Tier(tier)

	return &a, nil
}

// TryDebit atomically subtracts amount from the balance if the balance covers
// it, returning the new balance. The check and the write are one conditional
// UPDATE so concurrent debits can never overdraw the account.
func (l *PostgresLedger) TryDebit(ctx context.Context, userID, amount int64) (int64, error) {
	var newBalance int64
	err := l.withRetry(ctx, func() error {
		err := l.pool.QueryRow(ctx,
			`UPDATE accounts SET balance = balance - $2 WHERE user_id = $1 AND balance >= $2 RETURNING balance`,
			userID, amount,
		).Scan(&newBalance)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("debit account: %w", err)
		}

		var exists bool
		if err := l.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE user_id = $1)`,
			userID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		if !exists {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Credit atomically adds amount to the balance and returns the new balance.
// The increment never uses a balance captured earlier in the request, so it is
// correct under concurrent activity.
func (l *PostgresLedger) Credit(ctx context.Context, userID, amount int64) (int64, error) {
	var newBalance int64
	err := l.withRetry(ctx, func() error {
		err := l.pool.QueryRow(ctx,
			`UPDATE accounts SET balance = balance + $2 WHERE user_id = $1 RETURNING balance`,
			userID, amount,
		).Scan(&newBalance)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// SetTier updates the membership tier of a user.
func (l *PostgresLedger) SetTier(ctx context.Context, userID int64, tier model.Tier) error {
	cmdTag, err := l.pool.Exec(ctx,
		`UPDATE accounts SET tier = $2 WHERE user_id = $1`,
		userID, string(tier),
	)
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AppendTransaction writes one immutable transaction record.
func (l *PostgresLedger) AppendTransaction(ctx context.Context, txn *model.Transaction) error {
	var metadata []byte
	if txn.Metadata != nil {
		b, err := json.Marshal(txn.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = b
	}

	return l.withRetry(ctx, func() error {
		_, err := l.pool.Exec(ctx,
			`INSERT INTO transactions (user_id, type, amount, reference, status, description, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			txn.UserID, txn.Type, txn.Amount, txn.Reference, string(txn.Status), txn.Description, metadata,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
}

// TransactionsByUser returns the user's transaction history, newest first.
func (l *PostgresLedger) TransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, user_id, type, amount, reference, status, description, metadata, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			txn      model.Transaction
			status   string
			metadata []byte
		)
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Type, &txn.Amount, &txn.Reference,
			&status, &txn.Description, &metadata, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.Status = model.TransactionStatus(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		res = append(res, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

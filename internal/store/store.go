package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the Postgres-backed UnitOfWork.
type Store struct {
	db *sqlx.DB
}

var _ UnitOfWork = (*Store)(nil)

// NewStore connects to the database and configures the pool
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

func (s *Store) Products() ProductRepository { return &productRepo{ext: s.db} }
func (s *Store) Cart() CartRepository        { return &cartRepo{ext: s.db} }
func (s *Store) Orders() OrderRepository     { return &orderRepo{ext: s.db} }
func (s *Store) Users() UserRepository       { return &userRepo{ext: s.db} }

// WithTx runs fn inside one transaction. Any error from fn, or a failed
// commit, rolls back every statement issued through the bound
// repositories.
func (s *Store) WithTx(ctx context.Context, fn func(r Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txRepos{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txRepos binds every repository to a single open transaction.
type txRepos struct {
	tx *sqlx.Tx
}

func (r *txRepos) Products() ProductRepository { return &productRepo{ext: r.tx} }
func (r *txRepos) Cart() CartRepository        { return &cartRepo{ext: r.tx} }
func (r *txRepos) Orders() OrderRepository     { return &orderRepo{ext: r.tx} }
func (r *txRepos) Users() UserRepository       { return &userRepo{ext: r.tx} }

package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/store"
)

// CreatorStore holds creator accounts. Passwords arrive pre-hashed
// (argon2id, see internal/auth).
type CreatorStore struct {
	pool *pgxpool.Pool
}

func NewCreatorStore(pool *pgxpool.Pool) *CreatorStore {
	return &CreatorStore{pool: pool}
}

func (s *CreatorStore) Create(ctx context.Context, c *models.Creator) error {
	q := `
	INSERT INTO creators (id, handle, display_name, password)
	VALUES ($1, $2, $3, $4)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, c.ID, c.Handle, c.DisplayName, c.Password)
		return err
	})
}

func (s *CreatorStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Creator, error) {
	q := `SELECT id, handle, display_name, password FROM creators WHERE id = $1`
	return s.scanOne(s.pool.QueryRow(ctx, q, id))
}

func (s *CreatorStore) GetByHandle(ctx context.Context, handle string) (*models.Creator, error) {
	q := `SELECT id, handle, display_name, password FROM creators WHERE handle = $1`
	return s.scanOne(s.pool.QueryRow(ctx, q, handle))
}

func (s *CreatorStore) scanOne(row pgx.Row) (*models.Creator, error) {
	var c models.Creator
	err := row.Scan(&c.ID, &c.Handle, &c.DisplayName, &c.Password)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

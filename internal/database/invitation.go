package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/store"
)

// InvitationStore is the Postgres-backed store.InvitationStore.
// A partial unique index on (lobby_id, invitee_id) WHERE status = 'pending'
// enforces the single-pending-invitation invariant; Create translates the
// unique violation into store.ErrDuplicatePending for the service layer.
type InvitationStore struct {
	pool *pgxpool.Pool
}

func NewInvitationStore(pool *pgxpool.Pool) *InvitationStore {
	return &InvitationStore{pool: pool}
}

func (s *InvitationStore) Create(ctx context.Context, inv *models.BattleInvitation) error {
	q := `
	INSERT INTO battle_invitations (id, lobby_id, inviter_id, invitee_id, status, created_at, version)
	VALUES ($1, $2, $3, $4, $5, $6, 1)
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, inv.ID, inv.LobbyID, inv.InviterID, inv.InviteeID, string(inv.Status), inv.CreatedAt)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrDuplicatePending
	}
	return err
}

func (s *InvitationStore) Get(ctx context.Context, id uuid.UUID) (*models.BattleInvitation, int64, error) {
	q := `
	SELECT id, lobby_id, inviter_id, invitee_id, status, created_at, version
	FROM battle_invitations
	WHERE id = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, q, id))
}

func (s *InvitationStore) FindPending(ctx context.Context, lobbyID, inviteeID uuid.UUID) (*models.BattleInvitation, int64, error) {
	q := `
	SELECT id, lobby_id, inviter_id, invitee_id, status, created_at, version
	FROM battle_invitations
	WHERE lobby_id = $1 AND invitee_id = $2 AND status = 'pending'
	LIMIT 1
	`
	return s.scanOne(s.pool.QueryRow(ctx, q, lobbyID, inviteeID))
}

func (s *InvitationStore) scanOne(row pgx.Row) (*models.BattleInvitation, int64, error) {
	var (
		inv     models.BattleInvitation
		status  string
		version int64
	)
	err := row.Scan(&inv.ID, &inv.LobbyID, &inv.InviterID, &inv.InviteeID, &status, &inv.CreatedAt, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, store.ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	inv.Status = models.InvitationStatus(status)
	return &inv, version, nil
}

func (s *InvitationStore) PutIfVersion(ctx context.Context, inv *models.BattleInvitation, expected int64) error {
	q := `
	UPDATE battle_invitations
	SET status = $2, version = version + 1
	WHERE id = $1 AND version = $3
	`
	tag, err := s.pool.Exec(ctx, q, inv.ID, string(inv.Status), expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM battle_invitations WHERE id = $1)`, inv.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	return nil
}

func (s *InvitationStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	q := `SELECT id FROM battle_invitations WHERE status = 'pending' AND created_at < $1`
	rows, err := s.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

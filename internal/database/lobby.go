package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/versus-live/versus/internal/models"
	"github.com/versus-live/versus/internal/store"
)

// LobbyStore is the Postgres-backed store.LobbyStore. Optimistic concurrency
// rides on the lobbies.version column: every PutIfVersion is a single
// conditional UPDATE, so two writers can never both commit against the same
// version.
type LobbyStore struct {
	pool *pgxpool.Pool
}

func NewLobbyStore(pool *pgxpool.Pool) *LobbyStore {
	return &LobbyStore{pool: pool}
}

func (s *LobbyStore) Create(ctx context.Context, lobby *models.Lobby) error {
	acceptances, err := json.Marshal(lobby.Acceptances)
	if err != nil {
		return fmt.Errorf("marshal acceptances: %w", err)
	}
	q := `
	INSERT INTO lobbies (
		id, host_id, format, team_size, roster, state,
		paired_lobby_id, acceptances, matched_at, claimed_at,
		created_at, version
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q,
			lobby.ID,
			lobby.HostID,
			lobby.Format,
			lobby.TeamSize,
			lobby.Roster,
			string(lobby.State),
			lobby.PairedLobbyID,
			acceptances,
			lobby.MatchedAt,
			lobby.ClaimedAt,
			lobby.CreatedAt,
		)
		return err
	})
}

func (s *LobbyStore) Get(ctx context.Context, id uuid.UUID) (*models.Lobby, int64, error) {
	q := `
	SELECT id, host_id, format, team_size, roster, state,
	       paired_lobby_id, acceptances, matched_at, claimed_at,
	       created_at, version
	FROM lobbies
	WHERE id = $1
	`
	var (
		l           models.Lobby
		state       string
		acceptances []byte
		matchedAt   *time.Time
		claimedAt   *time.Time
		version     int64
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&l.ID,
		&l.HostID,
		&l.Format,
		&l.TeamSize,
		&l.Roster,
		&state,
		&l.PairedLobbyID,
		&acceptances,
		&matchedAt,
		&claimedAt,
		&l.CreatedAt,
		&version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, store.ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	l.State = models.LobbyState(state)
	l.MatchedAt = matchedAt
	l.ClaimedAt = claimedAt
	if len(acceptances) > 0 {
		if err := json.Unmarshal(acceptances, &l.Acceptances); err != nil {
			return nil, 0, fmt.Errorf("unmarshal acceptances: %w", err)
		}
	}
	return &l, version, nil
}

func (s *LobbyStore) PutIfVersion(ctx context.Context, lobby *models.Lobby, expected int64) error {
	acceptances, err := json.Marshal(lobby.Acceptances)
	if err != nil {
		return fmt.Errorf("marshal acceptances: %w", err)
	}
	q := `
	UPDATE lobbies
	SET host_id = $2, format = $3, team_size = $4, roster = $5, state = $6,
	    paired_lobby_id = $7, acceptances = $8, matched_at = $9,
	    claimed_at = $10, version = version + 1
	WHERE id = $1 AND version = $11
	`
	tag, err := s.pool.Exec(ctx, q,
		lobby.ID,
		lobby.HostID,
		lobby.Format,
		lobby.TeamSize,
		lobby.Roster,
		string(lobby.State),
		lobby.PairedLobbyID,
		acceptances,
		lobby.MatchedAt,
		lobby.ClaimedAt,
		expected,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Row missing and row at the wrong version look the same to the
		// conditional UPDATE; disambiguate for the caller.
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lobbies WHERE id = $1)`, lobby.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	return nil
}

func (s *LobbyStore) ListByState(ctx context.Context, state models.LobbyState) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM lobbies WHERE state = $1`, string(state))
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

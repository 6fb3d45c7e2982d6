// internal/devserver/postgres.go
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/bulletmania/internal/models"
)

const lobbySchema = `
CREATE TABLE IF NOT EXISTS dev_lobbies (
	room_id       TEXT PRIMARY KEY,
	app_id        TEXT NOT NULL,
	region        TEXT NOT NULL,
	visibility    TEXT NOT NULL,
	created_by    TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	capacity      INT NOT NULL,
	winning_score INT NOT NULL,
	state         JSONB NOT NULL DEFAULT '{}'::jsonb
)`

// PgDirectory keeps lobbies in Postgres so they survive a dev server restart.
type PgDirectory struct {
	db *pgxpool.Pool
}

// ConnectPostgres opens a pool for databaseURL and pings it.
func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// NewPgDirectory creates the lobby table if needed.
func NewPgDirectory(ctx context.Context, db *pgxpool.Pool) (*PgDirectory, error) {
	if _, err := db.Exec(ctx, lobbySchema); err != nil {
		return nil, fmt.Errorf("ensure lobby schema: %w", err)
	}
	return &PgDirectory{db: db}, nil
}

func (d *PgDirectory) Create(ctx context.Context, info *models.LobbyInfo) error {
	state, err := encodeState(info.State)
	if err != nil {
		return err
	}
	q := `
	INSERT INTO dev_lobbies (
		room_id, app_id, region, visibility, created_by, created_at,
		capacity, winning_score, state
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = d.db.Exec(ctx, q,
		info.RoomID,
		info.AppID,
		string(info.Region),
		string(info.Visibility),
		info.CreatedBy,
		info.CreatedAt,
		info.InitialConfig.Capacity,
		info.InitialConfig.WinningScore,
		state,
	)
	return err
}

const selectLobby = `
	SELECT room_id, app_id, region, visibility, created_by, created_at,
	       capacity, winning_score, state
	FROM dev_lobbies
`

func (d *PgDirectory) Get(ctx context.Context, roomID string) (*models.LobbyInfo, error) {
	return scanLobby(d.db.QueryRow(ctx, selectLobby+" WHERE room_id = $1", roomID))
}

func (d *PgDirectory) ListPublic(ctx context.Context, region models.Region) ([]models.LobbyInfo, error) {
	q := selectLobby + ` WHERE visibility = 'public' AND ($1 = '' OR region = $1) ORDER BY created_at DESC`
	rows, err := d.db.Query(ctx, q, string(region))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.LobbyInfo{}
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (d *PgDirectory) UpdateState(ctx context.Context, roomID string, fn func(*models.LobbyState)) (*models.LobbyInfo, error) {
	var updated *models.LobbyInfo
	err := pgx.BeginTxFunc(ctx, d.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		l, err := scanLobby(tx.QueryRow(ctx, selectLobby+" WHERE room_id = $1 FOR UPDATE", roomID))
		if err != nil {
			return err
		}
		if l.State == nil {
			l.State = &models.LobbyState{}
		}
		if l.State.PlayerNicknameMap == nil {
			l.State.PlayerNicknameMap = map[string]string{}
		}
		fn(l.State)
		state, err := encodeState(l.State)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE dev_lobbies SET state = $2 WHERE room_id = $1`, roomID, state); err != nil {
			return err
		}
		updated = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanLobby(row pgx.Row) (*models.LobbyInfo, error) {
	var (
		l                  models.LobbyInfo
		region, visibility string
		state              []byte
	)
	err := row.Scan(
		&l.RoomID,
		&l.AppID,
		&region,
		&visibility,
		&l.CreatedBy,
		&l.CreatedAt,
		&l.InitialConfig.Capacity,
		&l.InitialConfig.WinningScore,
		&state,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLobbyNotFound
	}
	if err != nil {
		return nil, err
	}
	l.Region = models.Region(region)
	l.Visibility = models.Visibility(visibility)

	var s models.LobbyState
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("decode lobby state for %s: %w", l.RoomID, err)
	}
	if s.PlayerNicknameMap == nil {
		s.PlayerNicknameMap = map[string]string{}
	}
	l.State = &s
	return &l, nil
}

func encodeState(s *models.LobbyState) ([]byte, error) {
	if s == nil {
		s = &models.LobbyState{PlayerNicknameMap: map[string]string{}}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode lobby state: %w", err)
	}
	return data, nil
}

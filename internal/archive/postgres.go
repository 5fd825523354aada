// Package archive stores finished games for later retrieval. Writes are
// best-effort from the arena's perspective; a failed save never rolls back
// the in-memory finish.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished room: participants, outcome, the full move
// log as JSON, and timing.
func (r *Repository) SaveResult(ctx context.Context, snap *arenadto.Snapshot, method string) error {
	if r == nil || r.db == nil || snap == nil {
		return nil
	}

	redID, blackID := "", ""
	if len(snap.Seats) > 0 {
		redID = snap.Seats[0]
	}
	if len(snap.Seats) > 1 {
		blackID = snap.Seats[1]
	}
	movesRaw, _ := json.Marshal(snap.Moves)
	endedAt := time.Now()
	if n := len(snap.Moves); n > 0 {
		endedAt = snap.Moves[n-1].Time
	}

	q := `INSERT INTO xiangqi_games (
	    room_id, mode, red_id, black_id,
	    winner, result_method, move_count, moves,
	    started_at, ended_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	  ) ON CONFLICT (room_id) DO UPDATE SET
	    mode=EXCLUDED.mode,
	    red_id=EXCLUDED.red_id,
	    black_id=EXCLUDED.black_id,
	    winner=EXCLUDED.winner,
	    result_method=EXCLUDED.result_method,
	    move_count=EXCLUDED.move_count,
	    moves=EXCLUDED.moves,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at`

	_, err := r.db.ExecContext(ctx, q,
		snap.RoomID, snap.Mode, redID, blackID,
		snap.Winner, strings.TrimSpace(method), len(snap.Moves), string(movesRaw),
		snap.CreatedAt, endedAt,
	)
	return err
}

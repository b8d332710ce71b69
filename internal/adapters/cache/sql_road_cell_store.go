package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/platform/obs"
)

// SQLRoadCellStore is a SQL-backed (Postgres via pgx) store of map data per grid cell.
type SQLRoadCellStore struct {
	DB  *sql.DB
	Log *slog.Logger
}

func NewSQLRoadCellStore(db *sql.DB, lg *slog.Logger) *SQLRoadCellStore {
	return &SQLRoadCellStore{DB: db, Log: lg}
}

// Fetch the cached payload for one grid cell.
func (s *SQLRoadCellStore) GetCell(ctx context.Context, key string) (_ domain.MapData, _ bool, err error) {
	defer obs.Time(ctx, s.Log, "roadcell.sql.GetCell")(&err)

	if s.DB == nil {
		return domain.MapData{}, false, errors.New("road cell store: db is nil")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return domain.MapData{}, false, errors.New("get road cell: key must not be empty")
	}

	q := `
	SELECT payload, fetched_at
	FROM road_cells
	WHERE cell_key = $1;
	`

	var payload []byte
	var fetchedAt time.Time
	err = s.DB.QueryRowContext(ctx, q, key).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MapData{}, false, nil
	}
	if err != nil {
		return domain.MapData{}, false, fmt.Errorf("get road cell: query road_cells table: %w", err)
	}

	data, err := decodeCell(payload)
	if err != nil {
		return domain.MapData{}, false, fmt.Errorf("get road cell %q: %w", key, err)
	}
	data.FetchedAt = fetchedAt

	return data, true, nil
}

// Store (or replace) the payload for one grid cell.
func (s *SQLRoadCellStore) PutCell(ctx context.Context, key string, data domain.MapData) (err error) {
	defer obs.Time(ctx, s.Log, "roadcell.sql.PutCell")(&err)

	if s.DB == nil {
		return errors.New("road cell store: db is nil")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("insert road cell: key must not be empty")
	}

	payload, err := encodeCell(data)
	if err != nil {
		return fmt.Errorf("insert road cell %q: %w", key, err)
	}

	q := `
	INSERT INTO road_cells (cell_key, payload, road_count, fetched_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (cell_key) DO UPDATE
	SET payload = EXCLUDED.payload,
		road_count = EXCLUDED.road_count,
		fetched_at = EXCLUDED.fetched_at;
	`
	if _, err := s.DB.ExecContext(ctx, q, key, payload, len(data.Roads), data.FetchedAt.UTC()); err != nil {
		return fmt.Errorf("insert road cell %q: %w", key, err)
	}

	return nil
}

// Delete cells fetched before cutoff. Returns the number of rows removed.
func (s *SQLRoadCellStore) PruneBefore(ctx context.Context, cutoff time.Time) (_ int64, err error) {
	defer obs.Time(ctx, s.Log, "roadcell.sql.PruneBefore")(&err)

	if s.DB == nil {
		return 0, errors.New("road cell store: db is nil")
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM road_cells WHERE fetched_at < $1;`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune road cells: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune road cells: rows affected: %w", err)
	}
	return n, nil
}

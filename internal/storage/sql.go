package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
	CREATE TABLE IF NOT EXISTS episodes (
		id              TEXT PRIMARY KEY,
		policy          TEXT NOT NULL,
		enable_icm      INTEGER NOT NULL,
		grid_size       INTEGER NOT NULL,
		n_drones        INTEGER NOT NULL,
		n_anomalous     INTEGER NOT NULL,
		steps           INTEGER NOT NULL,
		total_reward    DOUBLE PRECISION NOT NULL,
		anomalies_found INTEGER NOT NULL,
		done            INTEGER NOT NULL,
		last_error      TEXT NOT NULL,
		started_at      TEXT NOT NULL,
		finished_at     TEXT NOT NULL
	)`

const episodeColumns = `id, policy, enable_icm, grid_size, n_drones, n_anomalous, steps,
	total_reward, anomalies_found, done, last_error, started_at, finished_at`

// SQLStore implements ResultStore on PostgreSQL or SQLite.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// Open picks the driver from the DSN: postgres:// and postgresql:// URLs go
// to lib/pq, anything else is a SQLite path.
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	driver := "sqlite"
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	if postgres {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if !postgres {
		// One writer; also keeps :memory: databases on a single connection.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, postgres: postgres}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create episodes table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) SaveEpisode(ctx context.Context, e Episode) error {
	query := s.rebind(`INSERT INTO episodes (` + episodeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Policy, boolToInt(e.EnableICM), e.GridSize, e.NDrones, e.NAnomalous,
		e.Steps, e.TotalReward, e.AnomaliesFound, boolToInt(e.Done), e.LastError,
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to save episode: %w", err)
	}
	return nil
}

func (s *SQLStore) GetEpisode(ctx context.Context, id string) (Episode, error) {
	query := s.rebind(`SELECT ` + episodeColumns + ` FROM episodes WHERE id = ?`)
	e, err := scanEpisode(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Episode{}, ErrNotFound
	}
	if err != nil {
		return Episode{}, fmt.Errorf("failed to get episode: %w", err)
	}
	return e, nil
}

func (s *SQLStore) ListEpisodes(ctx context.Context, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.rebind(`SELECT ` + episodeColumns + ` FROM episodes ORDER BY finished_at DESC, id LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row scanner) (Episode, error) {
	var (
		e                 Episode
		icm, done         int
		started, finished string
	)
	err := row.Scan(&e.ID, &e.Policy, &icm, &e.GridSize, &e.NDrones, &e.NAnomalous,
		&e.Steps, &e.TotalReward, &e.AnomaliesFound, &done, &e.LastError, &started, &finished)
	if err != nil {
		return Episode{}, err
	}
	e.EnableICM = icm != 0
	e.Done = done != 0
	if e.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Episode{}, fmt.Errorf("bad started_at %q: %w", started, err)
	}
	if e.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Episode{}, fmt.Errorf("bad finished_at %q: %w", finished, err)
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	_ "modernc.org/sqlite"
)

// Chromium stores visit times as microseconds since 1601-01-01 UTC.
const webkitEpochOffset = 11644473600 * 1000 * 1000

func toWebkit(t time.Time) int64 {
	return t.UnixMicro() + webkitEpochOffset
}

func fromWebkit(us int64) time.Time {
	return time.UnixMicro(us - webkitEpochOffset).UTC()
}

// SQLiteStore reads a Chromium-format History database
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteStore opens the history database at path. The store only reads.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) QueryRecentVisits(ctx context.Context, maxCount, dayRange int) ([]Visit, error) {
	since := s.now().AddDate(0, 0, -dayRange)

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("url", "last_visit_time").
		From("urls").
		Where(
			sb.Equal("hidden", 0),
			sb.GreaterEqualThan("last_visit_time", toWebkit(since)),
		).
		OrderBy("last_visit_time").Desc().
		Limit(maxCount)
	query, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var (
			rawURL    string
			visitTime int64
		)
		if err := rows.Scan(&rawURL, &visitTime); err != nil {
			return nil, fmt.Errorf("history row scan failed: %w", err)
		}
		visits = append(visits, Visit{URL: rawURL, VisitTime: fromWebkit(visitTime)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows failed: %w", err)
	}
	return visits, nil
}

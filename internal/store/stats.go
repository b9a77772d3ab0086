package store

import (
	"context"
	"os"
)

// Stats returns row counts for each table and the database file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSize = info.Size()
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM memories`, &st.Memories},
		{`SELECT COUNT(*) FROM turns`, &st.Turns},
		{`SELECT COUNT(*) FROM preferences`, &st.Preferences},
		{`SELECT COUNT(*) FROM facts`, &st.Facts},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, wrap("stats", err)
		}
	}
	return st, nil
}

package sqlite

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed width so that lexical order of stored values matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(column, value string) (time.Time, error) {
	ts, err := time.Parse(timeLayout, value)
	if err != nil {
		if ts, err = time.Parse(time.RFC3339Nano, value); err != nil {
			return time.Time{}, fmt.Errorf("sqlite: parse %s: %w", column, err)
		}
	}
	return ts.UTC(), nil
}

func parseNullTime(column string, value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	ts, err := parseTime(column, value.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

// placeholders renders "?, ?, ?" for n bind parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',', ' ')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}

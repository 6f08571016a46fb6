package sqlutil

import (
	"database/sql"
	"strings"
	"time"
)

// Helper functions for converting between Go types and sql.Null* types

// ToNonEmptySqlString treats a blank string as NULL
func ToNonEmptySqlString(val string) sql.NullString {
	if strings.TrimSpace(val) == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}

// FromSqlString converts sql.NullString to Go string with default
func FromSqlString(val sql.NullString, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// ToSqlTime converts a Go time pointer to sql.NullTime
func ToSqlTime(val *time.Time) sql.NullTime {
	if val == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *val, Valid: true}
}

// FromSqlTime converts sql.NullTime to Go time pointer
func FromSqlTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

// ToUnixNano stores a time as integer nanoseconds, for drivers without a time type
func ToUnixNano(val time.Time) int64 {
	return val.UTC().UnixNano()
}

// FromUnixNano converts integer nanoseconds back to a UTC time
func FromUnixNano(val int64) time.Time {
	return time.Unix(0, val).UTC()
}

// ToNullUnixNano converts a Go time pointer to sql.NullInt64 nanoseconds
func ToNullUnixNano(val *time.Time) sql.NullInt64 {
	if val == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: ToUnixNano(*val), Valid: true}
}

// FromNullUnixNano converts sql.NullInt64 nanoseconds to Go time pointer
func FromNullUnixNano(val sql.NullInt64) *time.Time {
	if !val.Valid {
		return nil
	}
	t := FromUnixNano(val.Int64)
	return &t
}

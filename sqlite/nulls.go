package sqlite

import "database/sql"

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

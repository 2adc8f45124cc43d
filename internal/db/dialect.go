package db

import "fmt"

// Dialect holds the static per-engine SQL phrasing rules injected into the
// generation prompt so produced SQL is syntactically valid for the bound
// engine.
type Dialect struct {
	Name                string
	CaseInsensitiveLike string
	BooleanTrue         string
	BooleanFalse        string
	DateNow             string
	LimitSyntax         string
	Notes               string
}

var dialects = map[string]Dialect{
	EnginePostgreSQL: {
		Name:                "PostgreSQL",
		CaseInsensitiveLike: "ILIKE",
		BooleanTrue:         "TRUE",
		BooleanFalse:        "FALSE",
		DateNow:             "NOW()",
		LimitSyntax:         "LIMIT {limit} OFFSET {offset}",
		Notes:               "Use ILIKE for case-insensitive text search",
	},
	EngineMySQL: {
		Name:                "MySQL",
		CaseInsensitiveLike: "LIKE",
		BooleanTrue:         "1",
		BooleanFalse:        "0",
		DateNow:             "NOW()",
		LimitSyntax:         "LIMIT {offset}, {limit}",
		Notes:               "LIMIT offset, limit syntax",
	},
	EngineSQLite: {
		Name:                "SQLite",
		CaseInsensitiveLike: "LIKE",
		BooleanTrue:         "1",
		BooleanFalse:        "0",
		DateNow:             "CURRENT_TIMESTAMP",
		LimitSyntax:         "LIMIT {limit} OFFSET {offset}",
		Notes:               "Limited ALTER TABLE support",
	},
}

// DialectFor returns the phrasing rules for an engine kind.
func DialectFor(engine string) (Dialect, error) {
	d, ok := dialects[engine]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database engine: %s", engine)
	}
	return d, nil
}

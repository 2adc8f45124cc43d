// Package answer defines the unified response produced for every query,
// together with its provenance records.
package answer

// Answer modes, one per generation path.
const (
	ModeGeneral = "general"
	ModeRAG     = "rag"
	ModeDB      = "db"
)

// Citation kinds.
const (
	CitationRAG      = "rag"
	CitationDatabase = "database"
)

// Citation is one provenance record. Document citations and database
// citations share the struct; unused fields are omitted from JSON.
type Citation struct {
	Type string `json:"type"`

	// Document citation fields. Rank, score, and chunk index have
	// legitimate zero values, so they are always emitted.
	Rank              int     `json:"rank"`
	Score             float64 `json:"score"`
	FileName          string  `json:"file_name,omitempty"`
	PublicURL         *string `json:"public_url,omitempty"`
	ChunkIndex        int     `json:"chunk_index"`
	TotalChunksInFile int     `json:"total_chunks_in_file,omitempty"`

	// Database citation fields. SQL is empty when generation refused.
	Engine string   `json:"db_type,omitempty"`
	Tables []string `json:"tables,omitempty"`
	SQL    string   `json:"sql"`
}

// DatabaseCitation builds the provenance record for an answer grounded in
// executed SQL.
func DatabaseCitation(engine string, tables []string, sql string) Citation {
	return Citation{
		Type:   CitationDatabase,
		Engine: engine,
		Tables: tables,
		SQL:    sql,
	}
}

// FinalAnswer is the single terminal result of one query. It is built once
// by the finalizer and never mutated afterwards.
type FinalAnswer struct {
	Mode               string     `json:"mode"`
	Query              string     `json:"query"`
	Response           string     `json:"response"`
	Model              string     `json:"model"`
	UsedChunks         int        `json:"used_chunks"`
	Citations          []Citation `json:"citations"`
	FormattedCitations string     `json:"formatted_citations"`

	// Populated on the database path only.
	Rows       []map[string]any `json:"rows,omitempty"`
	RowCount   int              `json:"row_count,omitempty"`
	Confidence string           `json:"confidence,omitempty"`
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/answer"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/memory"
)

// AnswerClient is the generation call used to explain query results.
type AnswerClient interface {
	GenerateAnswer(ctx context.Context, mode, contextText, question string) (llm.Result, error)
}

// GeneratorClient combines the two LLM calls the executor depends on.
type GeneratorClient interface {
	SQLClient
	AnswerClient
}

// Executor runs the two-phase database path: a tool-safe execution phase
// that produces the JSON-safe payload, and a generation phase that explains
// the rows in natural language.
type Executor struct {
	registry *Registry
	client   GeneratorClient
	mem      *memory.Store
}

func NewExecutor(registry *Registry, client GeneratorClient, mem *memory.Store) *Executor {
	return &Executor{registry: registry, client: client, mem: mem}
}

// Execute is the tool phase: no answer generation happens here. It resolves
// the binding, snapshots the schema, generates SQL, and executes it when the
// safety gate accepted a statement. Every value in the returned payload is
// JSON-safe; this is the sole contract across the tool boundary.
func (e *Executor) Execute(ctx context.Context, sessionID, query string) (map[string]any, error) {
	log.Infow("db execution", "session", sessionID, "query", query)

	e.mem.Append(sessionID, memory.RoleUser, query)

	binding, err := e.registry.Binding(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	schema, err := InspectSchema(ctx, binding)
	if err != nil {
		return nil, fmt.Errorf("schema inspection failed: %w", err)
	}

	gen, err := GenerateQuery(ctx, e.client, binding.Engine, query, schema)
	if err != nil {
		return nil, err
	}

	if gen.SQL == "" {
		// Safety-gate rejection is a valid outcome, not an error.
		return map[string]any{
			"query":       query,
			"sql":         nil,
			"db_type":     gen.Engine,
			"tables_used": []string{},
			"rows":        []map[string]any{},
			"row_count":   0,
			"confidence":  ConfidenceLow,
		}, nil
	}

	rows, err := queryRows(ctx, binding.Handle, gen.SQL)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	log.Infow("db execution complete", "session", sessionID, "rows", len(rows))

	return map[string]any{
		"query":       query,
		"sql":         gen.SQL,
		"db_type":     gen.Engine,
		"tables_used": gen.TablesUsed,
		"rows":        rows,
		"row_count":   len(rows),
		"confidence":  gen.Confidence,
	}, nil
}

// Generate is the second phase: explain the payload's rows in natural
// language, strictly grounded in the row set. Generation failures propagate;
// a silent or fabricated summary of database rows is worse than a visible
// error.
func (e *Executor) Generate(ctx context.Context, sessionID string, payload map[string]any) (*answer.FinalAnswer, error) {
	query := stringField(payload, "query")
	sqlText := stringField(payload, "sql")
	engine := stringField(payload, "db_type")
	tables := stringSliceField(payload, "tables_used")
	rows := rowsField(payload, "rows")
	rowCount := intField(payload, "row_count")
	confidence := stringField(payload, "confidence")

	history := memory.TrimTrailingUser(e.mem.History(sessionID))

	var contextParts []string
	if text := memory.ContextText(history); text != "" {
		contextParts = append(contextParts, "Conversation History:\n"+text)
	}
	contextParts = append(contextParts, "Database Type: "+engine)
	if sqlText == "" {
		contextParts = append(contextParts,
			"No SQL query could be safely generated for this question; no query was run and there are no result rows.")
	} else {
		rowsJSON, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result rows: %w", err)
		}
		contextParts = append(contextParts, "Executed SQL:\n"+sqlText)
		contextParts = append(contextParts, "Query Result Rows:\n"+string(rowsJSON))
	}

	res, err := e.client.GenerateAnswer(ctx, answer.ModeDB, strings.Join(contextParts, "\n\n"), query)
	if err != nil {
		return nil, err
	}

	e.mem.Append(sessionID, memory.RoleAssistant, res.Response)

	citation := answer.DatabaseCitation(engine, tables, sqlText)

	return &answer.FinalAnswer{
		Mode:               answer.ModeDB,
		Query:              query,
		Response:           res.Response,
		Model:              res.Model,
		UsedChunks:         0,
		Citations:          []answer.Citation{citation},
		FormattedCitations: answer.Format([]answer.Citation{citation}),
		Rows:               rows,
		RowCount:           rowCount,
		Confidence:         confidence,
	}, nil
}

// queryRows executes one read-only statement and converts every value into
// the minimal JSON type system before it crosses the tool boundary.
func queryRows(ctx context.Context, handle *sql.DB, query string) ([]map[string]any, error) {
	rows, err := handle.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = jsonSafeValue(values[i], colTypes[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// jsonSafeValue is the final gate before the tool boundary: the result is
// always null, string, number, boolean, list, or mapping.
func jsonSafeValue(v any, colType *sql.ColumnType) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, string, int64, float64:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case []byte:
		s := string(val)
		if isDecimalType(colType) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	default:
		// Driver-specific types (UUIDs, intervals, arrays) degrade to their
		// string form rather than escaping the contract.
		return fmt.Sprint(val)
	}
}

func isDecimalType(colType *sql.ColumnType) bool {
	if colType == nil {
		return false
	}
	switch strings.ToUpper(colType.DatabaseTypeName()) {
	case "NUMERIC", "DECIMAL", "FLOAT", "DOUBLE", "REAL", "MONEY":
		return true
	}
	return false
}

// Payload field extraction. The payload may have crossed a serialization
// boundary, so list fields arrive either typed or as []any.

func stringField(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

func intField(payload map[string]any, key string) int {
	switch n := payload[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func stringSliceField(payload map[string]any, key string) []string {
	switch v := payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func rowsField(payload map[string]any, key string) []map[string]any {
	switch v := payload[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return []map[string]any{}
}

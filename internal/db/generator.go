package db

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Confidence markers on generated SQL.
const (
	ConfidenceLow  = "low"
	ConfidenceHigh = "high"
)

// insufficientSchemaMarker is the refusal token the prompt instructs the
// model to emit when the schema cannot answer the question.
const insufficientSchemaMarker = "INSUFFICIENT_SCHEMA"

const sqlPromptTemplate = `You are an expert SQL query generator.

Database Engine:
- Name: %s

DIALECT RULES (STRICT):
- Case-insensitive text matching uses: %s
- Boolean TRUE is represented as: %s
- Boolean FALSE is represented as: %s
- Current timestamp function: %s
- Pagination syntax: %s
- Notes: %s

SAFETY RULES (ABSOLUTE, NO EXCEPTIONS):
- ONLY generate READ-ONLY queries
- The query MUST start with SELECT
- The query MUST NOT contain: DROP, DELETE, TRUNCATE, ALTER, INSERT, UPDATE, MERGE
- The query MUST NOT contain multiple statements
- The character ';' is strictly forbidden anywhere in the output
- If the user request implies data modification or schema changes, return NO SQL

STRICT RULES (MANDATORY):
- Use ONLY tables and columns from the schema
- DO NOT guess table or column names
- DO NOT hallucinate joins (use ONLY defined foreign keys)
- Do NOT use SELECT *
- If the schema cannot answer the question, return INSUFFICIENT_SCHEMA
- DO NOT add explanations, comments, or markdown
- DO NOT wrap output in backticks
- Return ONLY ONE valid SQL query

Database Schema (JSON):
%s

User Question:
%s

Return ONLY SQL:`

// SQLClient is the single LLM call the generator needs.
type SQLClient interface {
	GenerateSQL(ctx context.Context, prompt string) (string, error)
}

// GenerateResult is the structured outcome of one generation attempt.
// SQL == "" means no statement could be safely generated.
type GenerateResult struct {
	SQL        string
	Engine     string
	TablesUsed []string
	Confidence string
}

var (
	denylistRe = regexp.MustCompile(`(?i)\b(drop|delete|truncate|alter|insert|update|merge)\b`)
	tableRe    = regexp.MustCompile(`(?i)(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	fenceRe    = regexp.MustCompile("^```(?:sql)?\\s*|\\s*```$")
)

// GenerateQuery turns a natural-language question into a validated read-only
// SQL statement for the bound engine. The prompt instructs the model to stay
// read-only, but prompts are advisory: the returned text passes through a
// fail-closed lexical gate, and any violation is treated exactly like an
// explicit refusal.
func GenerateQuery(ctx context.Context, client SQLClient, engine, question string, schema Schema) (GenerateResult, error) {
	dialect, err := DialectFor(engine)
	if err != nil {
		return GenerateResult{}, err
	}

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return GenerateResult{}, fmt.Errorf("failed to encode schema: %w", err)
	}

	prompt := fmt.Sprintf(sqlPromptTemplate,
		dialect.Name,
		dialect.CaseInsensitiveLike,
		dialect.BooleanTrue,
		dialect.BooleanFalse,
		dialect.DateNow,
		dialect.LimitSyntax,
		dialect.Notes,
		string(schemaJSON),
		question,
	)

	raw, err := client.GenerateSQL(ctx, prompt)
	if err != nil {
		return GenerateResult{}, err
	}

	sql := sanitizeSQL(raw)

	if !passesSafetyGate(sql) {
		log.Warnw("SQL generation blocked by safety gate", "engine", engine)
		return GenerateResult{
			Engine:     engine,
			TablesUsed: []string{},
			Confidence: ConfidenceLow,
		}, nil
	}

	confidence := ConfidenceHigh
	if strings.Contains(strings.ToUpper(sql), insufficientSchemaMarker) {
		confidence = ConfidenceLow
	}

	result := GenerateResult{
		SQL:        sql,
		Engine:     engine,
		TablesUsed: extractTables(sql),
		Confidence: confidence,
	}
	log.Infow("SQL generated", "engine", engine, "tables", result.TablesUsed, "confidence", confidence)
	return result, nil
}

// sanitizeSQL trims whitespace and a surrounding markdown fence. The prompt
// forbids fences, but the gate should judge the statement, not the wrapper.
func sanitizeSQL(raw string) string {
	s := strings.TrimSpace(raw)
	s = fenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// passesSafetyGate applies the fail-closed lexical checks: SELECT prefix,
// no statement separator, no mutating keyword as a whole token.
func passesSafetyGate(sql string) bool {
	if sql == "" {
		return false
	}
	upper := strings.ToUpper(sql)
	if strings.HasPrefix(upper, "NO SQL") {
		return false
	}
	if !strings.HasPrefix(upper, "SELECT") {
		return false
	}
	if strings.Contains(sql, ";") {
		return false
	}
	if denylistRe.MatchString(sql) {
		return false
	}
	return true
}

// extractTables pattern-matches FROM/JOIN clauses of the generated SQL.
// Best effort: tables referenced only inside CTEs or subquery aliases can
// be missed or over-reported; the citation treats this as advisory.
func extractTables(sql string) []string {
	seen := make(map[string]struct{})
	tables := []string{}
	for _, m := range tableRe.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

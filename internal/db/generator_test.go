package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQLClient struct {
	output string
	err    error
	prompt string
}

func (f *fakeSQLClient) GenerateSQL(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.output, f.err
}

func testSchema() Schema {
	return Schema{Tables: map[string]Table{
		"users": {
			Columns:    []Column{{Name: "id", Type: "integer"}, {Name: "name", Type: "text"}},
			PrimaryKey: []string{"id"},
		},
	}}
}

func TestGenerateQueryAcceptsSelect(t *testing.T) {
	client := &fakeSQLClient{output: "SELECT name FROM users ORDER BY name"}

	res, err := GenerateQuery(context.Background(), client, EnginePostgreSQL, "list all users", testSchema())
	require.NoError(t, err)

	assert.Equal(t, "SELECT name FROM users ORDER BY name", res.SQL)
	assert.Equal(t, EnginePostgreSQL, res.Engine)
	assert.Equal(t, []string{"users"}, res.TablesUsed)
	assert.Equal(t, ConfidenceHigh, res.Confidence)

	// The prompt carries the dialect and the schema.
	assert.Contains(t, client.prompt, "PostgreSQL")
	assert.Contains(t, client.prompt, `"users"`)
	assert.Contains(t, client.prompt, "list all users")
}

func TestGenerateQueryStripsMarkdownFence(t *testing.T) {
	client := &fakeSQLClient{output: "```sql\nSELECT name FROM users\n```"}

	res, err := GenerateQuery(context.Background(), client, EngineSQLite, "names", testSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM users", res.SQL)
}

func TestGenerateQuerySafetyGateRejects(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"empty output", ""},
		{"explicit refusal", "NO SQL"},
		{"not a select", "UPDATE users SET name = 'x'"},
		{"mutation keyword inside select", "SELECT id FROM users WHERE id IN (DELETE FROM users)"},
		{"multiple statements", "SELECT id FROM users; SELECT name FROM users"},
		{"trailing semicolon", "SELECT id FROM users;"},
		{"drop hidden in subclause", "SELECT id FROM users WHERE name = 'x' UNION SELECT 1 FROM t DROP"},
		{"insufficient schema marker", "INSUFFICIENT_SCHEMA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSQLClient{output: tt.output}
			res, err := GenerateQuery(context.Background(), client, EngineSQLite, "question", testSchema())
			require.NoError(t, err)

			assert.Empty(t, res.SQL)
			assert.Equal(t, ConfidenceLow, res.Confidence)
			assert.Empty(t, res.TablesUsed)
			assert.Equal(t, EngineSQLite, res.Engine)
		})
	}
}

func TestSafetyGateWholeTokenDenylist(t *testing.T) {
	// Column names containing a denylisted keyword as a substring must pass.
	client := &fakeSQLClient{output: "SELECT updated_at, last_insertion FROM users"}

	res, err := GenerateQuery(context.Background(), client, EngineSQLite, "question", testSchema())
	require.NoError(t, err)
	assert.Equal(t, "SELECT updated_at, last_insertion FROM users", res.SQL)
}

func TestGenerateQueryPropagatesClientError(t *testing.T) {
	client := &fakeSQLClient{err: errors.New("model unavailable")}
	_, err := GenerateQuery(context.Background(), client, EngineSQLite, "question", testSchema())
	assert.Error(t, err)
}

func TestGenerateQueryUnsupportedEngine(t *testing.T) {
	_, err := GenerateQuery(context.Background(), &fakeSQLClient{}, "oracle", "question", testSchema())
	assert.Error(t, err)
}

func TestExtractTables(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"SELECT a.id FROM albums a JOIN artists ar ON ar.id = a.artist_id", []string{"albums", "artists"}},
		{"SELECT id FROM Users JOIN users u ON u.id = id", []string{"users"}},
		{"SELECT 1", []string{}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractTables(tt.sql))
	}
}

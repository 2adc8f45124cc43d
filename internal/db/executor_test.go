package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querypilot/querypilot/internal/answer"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/memory"
)

type fakeGeneratorClient struct {
	sqlOutput string
	sqlErr    error
	response  string
	answerErr error

	gotContext  string
	gotQuestion string
}

func (f *fakeGeneratorClient) GenerateSQL(_ context.Context, prompt string) (string, error) {
	return f.sqlOutput, f.sqlErr
}

func (f *fakeGeneratorClient) GenerateAnswer(_ context.Context, mode, contextText, question string) (llm.Result, error) {
	f.gotContext = contextText
	f.gotQuestion = question
	return llm.Result{Response: f.response, Model: "test-model"}, f.answerErr
}

func newTestExecutor(t *testing.T, client GeneratorClient) (*Executor, sqlmock.Sqlmock, *memory.Store) {
	t.Helper()
	handle, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })

	registry := NewRegistry(t.TempDir())
	registry.handles.Set("s1", &Binding{Handle: handle, Engine: EngineSQLite}, cache.NoExpiration)

	mem := memory.NewStore()
	return NewExecutor(registry, client, mem), mock, mem
}

func expectEmptySchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT name FROM sqlite_master").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
}

func TestExecuteProducesJSONSafeRows(t *testing.T) {
	client := &fakeGeneratorClient{sqlOutput: "SELECT name, price, created_at FROM products"}
	executor, mock, mem := newTestExecutor(t, client)

	expectEmptySchema(mock)

	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("name").OfType("TEXT", ""),
		sqlmock.NewColumn("price").OfType("DECIMAL", []byte{}),
		sqlmock.NewColumn("created_at").OfType("TIMESTAMP", time.Time{}),
	).AddRow("widget", []byte("19.99"), created)
	mock.ExpectQuery("SELECT name, price, created_at FROM products").WillReturnRows(rows)

	payload, err := executor.Execute(context.Background(), "s1", "list all products")
	require.NoError(t, err)

	assert.Equal(t, "list all products", payload["query"])
	assert.Equal(t, "SELECT name, price, created_at FROM products", payload["sql"])
	assert.Equal(t, EngineSQLite, payload["db_type"])
	assert.Equal(t, []string{"products"}, payload["tables_used"])
	assert.Equal(t, 1, payload["row_count"])
	assert.Equal(t, ConfidenceHigh, payload["confidence"])

	resultRows, ok := payload["rows"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, resultRows, 1)
	assert.Equal(t, "widget", resultRows[0]["name"])
	assert.Equal(t, 19.99, resultRows[0]["price"])
	assert.Equal(t, "2026-03-14T09:30:00Z", resultRows[0]["created_at"])

	// The tool phase records the user turn.
	history := mem.History("s1")
	require.Len(t, history, 1)
	assert.Equal(t, memory.RoleUser, history[0].Role)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteZeroRowsIsSuccess(t *testing.T) {
	client := &fakeGeneratorClient{sqlOutput: "SELECT name FROM products"}
	executor, mock, _ := newTestExecutor(t, client)

	expectEmptySchema(mock)
	mock.ExpectQuery("SELECT name FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	payload, err := executor.Execute(context.Background(), "s1", "any products?")
	require.NoError(t, err)

	assert.Equal(t, 0, payload["row_count"])
	assert.Equal(t, []map[string]any{}, payload["rows"])
	assert.Equal(t, "SELECT name FROM products", payload["sql"])
}

func TestExecuteRefusalPayload(t *testing.T) {
	client := &fakeGeneratorClient{sqlOutput: "NO SQL"}
	executor, mock, _ := newTestExecutor(t, client)

	expectEmptySchema(mock)

	payload, err := executor.Execute(context.Background(), "s1", "drop all tables")
	require.NoError(t, err)

	assert.Nil(t, payload["sql"])
	assert.Equal(t, []string{}, payload["tables_used"])
	assert.Equal(t, []map[string]any{}, payload["rows"])
	assert.Equal(t, 0, payload["row_count"])
	assert.Equal(t, ConfidenceLow, payload["confidence"])
}

func TestExecuteWithoutConnectionFails(t *testing.T) {
	client := &fakeGeneratorClient{sqlOutput: "SELECT 1"}
	executor := NewExecutor(NewRegistry(t.TempDir()), client, memory.NewStore())

	_, err := executor.Execute(context.Background(), "unknown", "question")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestExecutePropagatesQueryError(t *testing.T) {
	client := &fakeGeneratorClient{sqlOutput: "SELECT name FROM products"}
	executor, mock, _ := newTestExecutor(t, client)

	expectEmptySchema(mock)
	mock.ExpectQuery("SELECT name FROM products").
		WillReturnError(errors.New("relation does not exist"))

	_, err := executor.Execute(context.Background(), "s1", "question")
	assert.ErrorContains(t, err, "query execution failed")
}

func TestGenerateExplainsRows(t *testing.T) {
	client := &fakeGeneratorClient{response: "There is one product, the widget, at $19.99."}
	executor, _, mem := newTestExecutor(t, client)

	payload := map[string]any{
		"query":       "list all products",
		"sql":         "SELECT name, price FROM products",
		"db_type":     EngineSQLite,
		"tables_used": []string{"products"},
		"rows":        []map[string]any{{"name": "widget", "price": 19.99}},
		"row_count":   1,
		"confidence":  ConfidenceHigh,
	}

	result, err := executor.Generate(context.Background(), "s1", payload)
	require.NoError(t, err)

	assert.Equal(t, answer.ModeDB, result.Mode)
	assert.Equal(t, "list all products", result.Query)
	assert.Equal(t, "There is one product, the widget, at $19.99.", result.Response)
	assert.Equal(t, 1, result.RowCount)
	assert.Equal(t, ConfidenceHigh, result.Confidence)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, answer.CitationDatabase, result.Citations[0].Type)
	assert.Equal(t, []string{"products"}, result.Citations[0].Tables)
	assert.Contains(t, result.FormattedCitations, "Source: SQLITE database")
	assert.Contains(t, result.FormattedCitations, "SELECT name, price FROM products")

	assert.Contains(t, client.gotContext, "widget")
	assert.Equal(t, "list all products", client.gotQuestion)

	history := mem.History("s1")
	require.Len(t, history, 1)
	assert.Equal(t, memory.RoleAssistant, history[0].Role)
}

func TestGenerateExplainsRefusal(t *testing.T) {
	client := &fakeGeneratorClient{response: "I can't run that request; no query was executed."}
	executor, _, _ := newTestExecutor(t, client)

	payload := map[string]any{
		"query":       "drop all tables",
		"sql":         nil,
		"db_type":     EngineSQLite,
		"tables_used": []string{},
		"rows":        []map[string]any{},
		"row_count":   0,
		"confidence":  ConfidenceLow,
	}

	result, err := executor.Generate(context.Background(), "s1", payload)
	require.NoError(t, err)

	// The model is told explicitly that nothing was run instead of being
	// handed an empty row set to explain.
	assert.Contains(t, client.gotContext, "No SQL query could be safely generated")
	assert.NotContains(t, client.gotContext, "Query Result Rows")

	assert.Equal(t, answer.ModeDB, result.Mode)
	assert.Equal(t, 0, result.RowCount)
	assert.Equal(t, ConfidenceLow, result.Confidence)
	require.Len(t, result.Citations, 1)
	assert.Empty(t, result.Citations[0].SQL)
	assert.Contains(t, result.FormattedCitations, "Source: SQLITE database")
}

func TestGeneratePropagatesLLMError(t *testing.T) {
	client := &fakeGeneratorClient{answerErr: errors.New("model unavailable")}
	executor, _, _ := newTestExecutor(t, client)

	_, err := executor.Generate(context.Background(), "s1", map[string]any{"query": "q"})
	assert.Error(t, err)
}

func TestGenerateToleratesDeserializedPayload(t *testing.T) {
	client := &fakeGeneratorClient{response: "ok"}
	executor, _, _ := newTestExecutor(t, client)

	payload := map[string]any{
		"query":       "q",
		"sql":         "SELECT id FROM t",
		"db_type":     EngineSQLite,
		"tables_used": []any{"t"},
		"rows":        []any{map[string]any{"id": float64(1)}},
		"row_count":   float64(1),
		"confidence":  ConfidenceHigh,
	}

	result, err := executor.Generate(context.Background(), "s1", payload)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowCount)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, float64(1), result.Rows[0]["id"])
}

func TestJSONSafeValue(t *testing.T) {
	assert.Nil(t, jsonSafeValue(nil, nil))
	assert.Equal(t, int64(5), jsonSafeValue(int64(5), nil))
	assert.Equal(t, true, jsonSafeValue(true, nil))
	assert.Equal(t, "text", jsonSafeValue("text", nil))
	assert.Equal(t, "bytes", jsonSafeValue([]byte("bytes"), nil))

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2026-01-02T03:04:05Z", jsonSafeValue(ts, nil))

	// Unrecognized driver types degrade to their string form.
	type custom struct{ A int }
	assert.Equal(t, "{7}", jsonSafeValue(custom{A: 7}, nil))
}

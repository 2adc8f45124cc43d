// Package rag implements the document side of the engine: ingestion with
// chunking and embedding, a session-partitioned vector index backed by
// Postgres with pgvector, similarity retrieval, and grounded answer
// generation with citations.
package rag

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/querypilot/querypilot/internal/logger"
)

var log = logger.Named("rag")

// embeddingDim matches the text-embedding-004 output size.
const embeddingDim = 768

// Hit is one retrieved chunk with its similarity score.
type Hit struct {
	FileName    string
	ChunkIndex  int
	TotalChunks int
	Content     string
	Score       float64
}

// Index is the session-partitioned vector store. Every read and write is
// scoped to a session id; one session can never retrieve another's chunks.
type Index struct {
	pool *pgxpool.Pool
}

// NewIndex connects to the vector database and ensures the chunk table
// exists.
func NewIndex(ctx context.Context, dsn string) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid vector database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vector database: %w", err)
	}

	idx := &Index{pool: pool}
	if err := idx.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS doc_chunks (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			chunk_index INT NOT NULL,
			total_chunks INT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			UNIQUE (session_id, file_name, chunk_index)
		)`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS doc_chunks_session_idx ON doc_chunks (session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := idx.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare vector schema: %w", err)
		}
	}
	return nil
}

// Upsert stores one embedded chunk, replacing any previous chunk at the same
// position so re-uploading a file overwrites its old content.
func (idx *Index) Upsert(ctx context.Context, sessionID, fileName string, chunkIndex, totalChunks int, content string, embedding []float32) error {
	_, err := idx.pool.Exec(ctx,
		`INSERT INTO doc_chunks (session_id, file_name, chunk_index, total_chunks, content, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, file_name, chunk_index)
		 DO UPDATE SET total_chunks = EXCLUDED.total_chunks, content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
		sessionID, fileName, chunkIndex, totalChunks, content, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to store chunk %d of %s: %w", chunkIndex, fileName, err)
	}
	return nil
}

// DeleteFile removes every chunk of one file. Called before re-ingesting a
// file whose new version has fewer chunks than the old one.
func (idx *Index) DeleteFile(ctx context.Context, sessionID, fileName string) error {
	_, err := idx.pool.Exec(ctx,
		`DELETE FROM doc_chunks WHERE session_id = $1 AND file_name = $2`,
		sessionID, fileName)
	return err
}

// Search returns the top-k chunks for the session ordered by cosine
// similarity. pgvector's <=> operator is cosine distance, so the score is
// 1 - distance.
func (idx *Index) Search(ctx context.Context, sessionID string, embedding []float32, topK int) ([]Hit, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := idx.pool.Query(ctx,
		`SELECT file_name, chunk_index, total_chunks, content, 1 - (embedding <=> $2) AS score
		 FROM doc_chunks
		 WHERE session_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		sessionID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.FileName, &h.ChunkIndex, &h.TotalChunks, &h.Content, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// DropSession removes every chunk belonging to the session. Part of session
// reset.
func (idx *Index) DropSession(ctx context.Context, sessionID string) error {
	_, err := idx.pool.Exec(ctx, `DELETE FROM doc_chunks WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to drop session chunks: %w", err)
	}
	return nil
}

func (idx *Index) Close() {
	idx.pool.Close()
}

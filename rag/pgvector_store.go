package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// PgVectorConfig 配置 pgvector 后端.
type PgVectorConfig struct {
	ConnString string `json:"conn_string"`
	Table      string `json:"table"`
	VectorDim  int    `json:"vector_dim"`
}

// PgVectorStore 基于 Postgres + pgvector 的 VectorStore 实现.
// 所有命名空间共用一张表，namespace 列做分区过滤；
// 余弦距离检索（<=> 运算符）.
type PgVectorStore struct {
	cfg    PgVectorConfig
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgVectorStore 创建 pgvector 存储并初始化表结构.
func NewPgVectorStore(ctx context.Context, cfg PgVectorConfig, logger *zap.Logger) (*PgVectorStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Table == "" {
		cfg.Table = "rag_chunks"
	}
	if cfg.VectorDim == 0 {
		cfg.VectorDim = 1536
	}

	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PgVectorStore{
		cfg:    cfg,
		pool:   pool,
		logger: logger.With(zap.String("component", "pgvector_store")),
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB,
			PRIMARY KEY (namespace, id)
		)`, s.cfg.Table, s.cfg.VectorDim)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		s.cfg.Table, s.cfg.Table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func toVector(v []float64) pgvector.Vector {
	f32 := make([]float32, len(v))
	for i, x := range v {
		f32[i] = float32(x)
	}
	return pgvector.NewVector(f32)
}

// Upsert 实现 VectorStore.Upsert.
func (s *PgVectorStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (namespace, id, text, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (namespace, id) DO UPDATE SET
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		s.cfg.Table)

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", r.ID, err)
		}
		if _, err := tx.Exec(ctx, stmt, namespace, r.ID, r.Text, toVector(r.Vector), meta); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("pgvector upsert completed",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)))
	return nil
}

// Query 实现 VectorStore.Query.
// filter 通过 JSONB 包含运算符（@>）下推到数据库.
func (s *PgVectorStore) Query(ctx context.Context, namespace string, vector []float64, k int, filter map[string]any) ([]RetrievalCandidate, error) {
	if k <= 0 {
		return []RetrievalCandidate{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, text, metadata, embedding <=> $1 AS distance
		FROM %s
		WHERE namespace = $2`,
		s.cfg.Table)
	args := []any{toVector(vector), namespace}

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		query += " AND metadata @> $3"
		args = append(args, filterJSON)
	}

	query += fmt.Sprintf(" ORDER BY distance LIMIT %d", k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []RetrievalCandidate
	for rows.Next() {
		var (
			c        RetrievalCandidate
			metaJSON []byte
			distance float64
		)
		if err := rows.Scan(&c.ChunkID, &c.Text, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		c.Distance = distance
		c.Score = 1.0 - distance
		c.Namespace = namespace
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if out == nil {
		out = []RetrievalCandidate{}
	}
	return out, nil
}

// Delete 实现 VectorStore.Delete.
func (s *PgVectorStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)", s.cfg.Table)
	_, err := s.pool.Exec(ctx, stmt, namespace, ids)
	return err
}

// DeleteNamespace 实现 VectorStore.DeleteNamespace.
func (s *PgVectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1", s.cfg.Table)
	_, err := s.pool.Exec(ctx, stmt, namespace)
	return err
}

// Count 实现 VectorStore.Count.
func (s *PgVectorStore) Count(ctx context.Context, namespace string) (int, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE namespace = $1", s.cfg.Table)
	var count int
	if err := s.pool.QueryRow(ctx, stmt, namespace).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Close 关闭连接池.
func (s *PgVectorStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

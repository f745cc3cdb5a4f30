package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant VectorStore implementation.
//
// Notes:
// - Each namespace maps to its own Qdrant collection (prefix + "_" + namespace).
// - Qdrant point IDs are UUIDs; a stable UUID is derived from the chunk ID.
// - Chunk text/metadata are stored in payload.
type QdrantConfig struct {
	BaseURL          string        `json:"base_url"`
	APIKey           string        `json:"api_key,omitempty"`
	CollectionPrefix string        `json:"collection_prefix"`
	Timeout          time.Duration `json:"timeout,omitempty"`

	Distance   string `json:"distance,omitempty"`    // Cosine (default), Dot, Euclid
	VectorSize int    `json:"vector_size,omitempty"` // Optional override; defaults to len(vector)
	Wait       *bool  `json:"wait,omitempty"`        // Wait for operation completion (default true)
}

// QdrantStore implements VectorStore using Qdrant's REST API.
type QdrantStore struct {
	cfg QdrantConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrantStore creates a Qdrant-backed VectorStore.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "sraga"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.Wait == nil {
		wait := true
		cfg.Wait = &wait
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "qdrant_store")),
		ensured: make(map[string]bool),
	}
}

var qdrantNamespace = uuid.MustParse("2f1c7d58-9b0e-4c3a-8d6f-7a1e5b4c3d2e")

func qdrantPointID(chunkID string) string {
	// Stable UUID derived from chunk ID (supports any string input).
	return uuid.NewSHA1(qdrantNamespace, []byte(chunkID)).String()
}

func (s *QdrantStore) collection(namespace string) string {
	return s.cfg.CollectionPrefix + "_" + namespace
}

func (s *QdrantStore) ensureCollection(ctx context.Context, namespace string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[namespace] {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": s.cfg.Distance,
		},
	}

	endpoint := fmt.Sprintf("%s/collections/%s", s.baseURL, url.PathEscape(s.collection(namespace)))
	reqBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Qdrant returns 409 if collection exists.
	if resp.StatusCode != http.StatusConflict &&
		(resp.StatusCode < 200 || resp.StatusCode >= 300) {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant create collection failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	s.ensured[namespace] = true
	return nil
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := s.baseURL + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Upsert 实现 VectorStore.Upsert.
func (s *QdrantStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	vectorSize := s.cfg.VectorSize
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record[%d] has empty id", i)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("record[%d] has no vector", i)
		}
		if vectorSize == 0 {
			vectorSize = len(r.Vector)
		}
		if len(r.Vector) != vectorSize {
			return fmt.Errorf("record[%d] vector dimension mismatch: got=%d want=%d", i, len(r.Vector), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, namespace, vectorSize); err != nil {
		return err
	}

	points := make([]qdrantPoint, 0, len(records))
	for _, r := range records {
		points = append(points, qdrantPoint{
			ID:     qdrantPointID(r.ID),
			Vector: r.Vector,
			Payload: map[string]any{
				"chunk_id": r.ID,
				"text":     r.Text,
				"metadata": r.Metadata,
			},
		})
	}

	req := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points", url.PathEscape(s.collection(namespace)))
	if s.cfg.Wait == nil || *s.cfg.Wait {
		path += "?wait=true"
	}

	var resp any
	if err := s.doJSON(ctx, http.MethodPut, path, req, &resp); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)))
	return nil
}

// qdrantFilter 将相等性合取转换为 Qdrant filter.
func qdrantFilter(filter map[string]any) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter))
	for k, v := range filter {
		must = append(must, map[string]any{
			"key":   "metadata." + k,
			"match": map[string]any{"value": v},
		})
	}
	return map[string]any{"must": must}
}

// Query 实现 VectorStore.Query.
func (s *QdrantStore) Query(ctx context.Context, namespace string, vector []float64, k int, filter map[string]any) ([]RetrievalCandidate, error) {
	if k <= 0 {
		return []RetrievalCandidate{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	req := struct {
		Vector      []float64      `json:"vector"`
		Limit       int            `json:"limit"`
		Filter      map[string]any `json:"filter,omitempty"`
		WithPayload bool           `json:"with_payload"`
		WithVector  bool           `json:"with_vector"`
	}{
		Vector:      vector,
		Limit:       k,
		Filter:      qdrantFilter(filter),
		WithPayload: true,
		WithVector:  false,
	}

	type qdrantResult struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	var resp struct {
		Result []qdrantResult `json:"result"`
		Status string         `json:"status"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.collection(namespace)))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		// 集合不存在视为空命名空间
		if strings.Contains(err.Error(), "status=404") {
			return []RetrievalCandidate{}, nil
		}
		return nil, err
	}

	out := make([]RetrievalCandidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		c := RetrievalCandidate{
			Score:     r.Score,
			Distance:  1.0 - r.Score,
			Namespace: namespace,
		}
		if r.Payload != nil {
			if v, ok := r.Payload["chunk_id"].(string); ok {
				c.ChunkID = v
			}
			if v, ok := r.Payload["text"].(string); ok {
				c.Text = v
			}
			if m, ok := r.Payload["metadata"].(map[string]any); ok {
				c.Metadata = m
			}
		}
		if c.ChunkID == "" {
			// Fallback to point ID if payload does not include chunk_id.
			c.ChunkID = fmt.Sprint(r.ID)
		}
		out = append(out, c)
	}

	return out, nil
}

// Delete 实现 VectorStore.Delete.
func (s *QdrantStore) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	points := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		points = append(points, qdrantPointID(id))
	}

	req := struct {
		Points []string `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points/delete", url.PathEscape(s.collection(namespace)))
	if s.cfg.Wait == nil || *s.cfg.Wait {
		path += "?wait=true"
	}

	var resp any
	return s.doJSON(ctx, http.MethodPost, path, req, &resp)
}

// DeleteNamespace 删除命名空间对应的整个集合.
func (s *QdrantStore) DeleteNamespace(ctx context.Context, namespace string) error {
	path := fmt.Sprintf("/collections/%s", url.PathEscape(s.collection(namespace)))
	if err := s.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if strings.Contains(err.Error(), "status=404") {
			return nil
		}
		return err
	}

	s.mu.Lock()
	delete(s.ensured, namespace)
	s.mu.Unlock()
	return nil
}

// Count 实现 VectorStore.Count.
func (s *QdrantStore) Count(ctx context.Context, namespace string) (int, error) {
	req := struct {
		Exact bool `json:"exact"`
	}{Exact: true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.collection(namespace)))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		if strings.Contains(err.Error(), "status=404") {
			return 0, nil
		}
		return 0, err
	}

	return resp.Result.Count, nil
}

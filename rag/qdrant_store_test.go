package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant 覆盖集合与点操作的最小 Qdrant REST 桩.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]qdrantPoint
	lastAPIKey  string
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: make(map[string]map[string]qdrantPoint)}
}

func (f *fakeQdrant) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastAPIKey = r.Header.Get("api-key")

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "collections" {
			http.NotFound(w, r)
			return
		}
		name := parts[1]

		switch {
		case len(parts) == 2 && r.Method == http.MethodPut:
			if _, ok := f.collections[name]; ok {
				w.WriteHeader(http.StatusConflict)
				return
			}
			f.collections[name] = make(map[string]qdrantPoint)
			writeJSON(w, map[string]any{"result": true, "status": "ok"})

		case len(parts) == 2 && r.Method == http.MethodDelete:
			if _, ok := f.collections[name]; !ok {
				http.NotFound(w, r)
				return
			}
			delete(f.collections, name)
			writeJSON(w, map[string]any{"result": true, "status": "ok"})

		case len(parts) == 3 && parts[2] == "points" && r.Method == http.MethodPut:
			coll, ok := f.collections[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			var req struct {
				Points []qdrantPoint `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			for _, p := range req.Points {
				coll[p.ID] = p
			}
			writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}, "status": "ok"})

		case len(parts) == 4 && parts[3] == "search" && r.Method == http.MethodPost:
			coll, ok := f.collections[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			var req struct {
				Vector []float64 `json:"vector"`
				Limit  int       `json:"limit"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)

			type hit struct {
				ID      string         `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			}
			hits := make([]hit, 0, len(coll))
			for _, p := range coll {
				hits = append(hits, hit{
					ID:      p.ID,
					Score:   cosineSimilarity(req.Vector, p.Vector),
					Payload: p.Payload,
				})
			}
			sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
			if req.Limit > 0 && req.Limit < len(hits) {
				hits = hits[:req.Limit]
			}
			writeJSON(w, map[string]any{"result": hits, "status": "ok"})

		case len(parts) == 4 && parts[3] == "delete" && r.Method == http.MethodPost:
			coll, ok := f.collections[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			var req struct {
				Points []string `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			for _, id := range req.Points {
				delete(coll, id)
			}
			writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}, "status": "ok"})

		case len(parts) == 4 && parts[3] == "count" && r.Method == http.MethodPost:
			coll, ok := f.collections[name]
			if !ok {
				http.NotFound(w, r)
				return
			}
			writeJSON(w, map[string]any{"result": map[string]any{"count": len(coll)}, "status": "ok"})

		default:
			http.NotFound(w, r)
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestQdrant(t *testing.T) (*QdrantStore, *fakeQdrant) {
	t.Helper()
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	store := NewQdrantStore(QdrantConfig{
		BaseURL:          srv.URL,
		APIKey:           "test-key",
		CollectionPrefix: "test",
	}, nil)
	return store, fake
}

func TestQdrantUpsertAndQuery(t *testing.T) {
	t.Parallel()

	store, fake := newTestQdrant(t)
	ctx := context.Background()

	records := []Record{
		{ID: "c1", Text: "alpha", Vector: []float64{1, 0}, Metadata: map[string]any{"lang": "en"}},
		{ID: "c2", Text: "beta", Vector: []float64{0, 1}},
	}
	require.NoError(t, store.Upsert(ctx, "docs", records))

	// 集合名 = 前缀 + 命名空间
	assert.Contains(t, fake.collections, "test_docs")
	assert.Equal(t, "test-key", fake.lastAPIKey)

	got, err := store.Query(ctx, "docs", []float64{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c1", got[0].ChunkID)
	assert.Equal(t, "alpha", got[0].Text)
	assert.Equal(t, "en", got[0].Metadata["lang"])
	assert.Equal(t, "docs", got[0].Namespace)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-9)
}

func TestQdrantUpsertValidation(t *testing.T) {
	t.Parallel()

	store, _ := newTestQdrant(t)
	ctx := context.Background()

	assert.NoError(t, store.Upsert(ctx, "docs", nil))

	err := store.Upsert(ctx, "docs", []Record{{ID: "", Vector: []float64{1}}})
	assert.ErrorContains(t, err, "empty id")

	err = store.Upsert(ctx, "docs", []Record{{ID: "a", Vector: nil}})
	assert.ErrorContains(t, err, "no vector")

	err = store.Upsert(ctx, "docs", []Record{
		{ID: "a", Vector: []float64{1, 0}},
		{ID: "b", Vector: []float64{1}},
	})
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestQdrantQueryMissingCollection(t *testing.T) {
	t.Parallel()

	store, _ := newTestQdrant(t)

	// 不存在的集合视为空命名空间
	got, err := store.Query(context.Background(), "nothing", []float64{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := store.Count(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQdrantDelete(t *testing.T) {
	t.Parallel()

	store, _ := newTestQdrant(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "c1", Text: "alpha", Vector: []float64{1, 0}},
		{ID: "c2", Text: "beta", Vector: []float64{0, 1}},
	}))

	require.NoError(t, store.Delete(ctx, "docs", []string{"c1"}))

	n, err := store.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQdrantDeleteNamespace(t *testing.T) {
	t.Parallel()

	store, fake := newTestQdrant(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "c1", Text: "alpha", Vector: []float64{1, 0}},
	}))
	require.NoError(t, store.DeleteNamespace(ctx, "docs"))
	assert.NotContains(t, fake.collections, "test_docs")

	// 已删除的命名空间再删为幂等操作
	require.NoError(t, store.DeleteNamespace(ctx, "docs"))

	// 删除后重新写入需要重建集合
	require.NoError(t, store.Upsert(ctx, "docs", []Record{
		{ID: "c2", Text: "beta", Vector: []float64{0, 1}},
	}))
	n, err := store.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQdrantPointIDStable(t *testing.T) {
	t.Parallel()

	a := qdrantPointID("doc:0")
	b := qdrantPointID("doc:0")
	c := qdrantPointID("doc:1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestQdrantFilterTranslation(t *testing.T) {
	t.Parallel()

	assert.Nil(t, qdrantFilter(nil))

	f := qdrantFilter(map[string]any{"lang": "en"})
	must, ok := f["must"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, must, 1)
	assert.Equal(t, "metadata.lang", must[0]["key"])
	assert.Equal(t, map[string]any{"value": "en"}, must[0]["match"])
}

package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sraga-ai/ragcore/llm"
)

// scriptedProvider 按脚本响应的生成提供者桩.
type scriptedProvider struct {
	mu      sync.Mutex
	calls   int
	respond func(req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.respond(req)
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func textProvider(text string) *scriptedProvider {
	return &scriptedProvider{respond: func(*llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Text: text}, nil
	}}
}

func failingProvider(err error) *scriptedProvider {
	return &scriptedProvider{respond: func(*llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, err
	}}
}

func TestExpandAdoptsRewrite(t *testing.T) {
	t.Parallel()

	a := NewAugmenter(textProvider("golang concurrency patterns channels goroutines"), DefaultAugmentConfig(), nil, nil)

	expanded, ok := a.Expand(context.Background(), "go concurrency")
	require.True(t, ok)
	assert.Equal(t, "golang concurrency patterns channels goroutines", expanded)
}

func TestExpandDiscardsOversizedRewrite(t *testing.T) {
	t.Parallel()

	// 改写超过原查询 3 倍长度，护栏丢弃
	a := NewAugmenter(textProvider(strings.Repeat("x", 100)), DefaultAugmentConfig(), nil, nil)

	_, ok := a.Expand(context.Background(), "short query")
	assert.False(t, ok)
}

func TestExpandDiscardsOnError(t *testing.T) {
	t.Parallel()

	a := NewAugmenter(failingProvider(errors.New("provider down")), DefaultAugmentConfig(), nil, nil)
	_, ok := a.Expand(context.Background(), "any query")
	assert.False(t, ok)

	a = NewAugmenter(textProvider("   "), DefaultAugmentConfig(), nil, nil)
	_, ok = a.Expand(context.Background(), "any query")
	assert.False(t, ok)
}

func TestRerankKeywordBoost(t *testing.T) {
	t.Parallel()

	a := NewAugmenter(nil, DefaultAugmentConfig(), nil, nil)

	candidates := []RetrievalCandidate{
		{ChunkID: "far", Text: "unrelated content here", Distance: 0.5},
		{ChunkID: "near", Text: "also unrelated", Distance: 0.3},
	}

	// 关键词命中 3 次：0.5 - 0.1*3 = 0.2 < 0.3
	candidates[0].Text = "go concurrency with go channels and go routines"

	got := a.Rerank("go concurrency", candidates, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "far", got[0].ChunkID)
	assert.Equal(t, "near", got[1].ChunkID)
}

func TestRerankTruncatesToK(t *testing.T) {
	t.Parallel()

	a := NewAugmenter(nil, DefaultAugmentConfig(), nil, nil)

	candidates := []RetrievalCandidate{
		{ChunkID: "a", Text: "aaa", Distance: 0.1},
		{ChunkID: "b", Text: "bbb", Distance: 0.2},
		{ChunkID: "c", Text: "ccc", Distance: 0.3},
		{ChunkID: "d", Text: "ddd", Distance: 0.4},
	}

	got := a.Rerank("nothing matches", candidates, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ChunkID)
	assert.Equal(t, "b", got[1].ChunkID)

	// k <= 0 返回全部
	assert.Len(t, a.Rerank("q", candidates, 0), 4)
	assert.Empty(t, a.Rerank("q", nil, 3))
}

// 重排性质：无关键词命中时保持距离升序；输入不被修改.
func TestRerankProperties(t *testing.T) {
	t.Parallel()

	a := NewAugmenter(nil, DefaultAugmentConfig(), nil, nil)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "n")
		candidates := make([]RetrievalCandidate, n)
		for i := range candidates {
			candidates[i] = RetrievalCandidate{
				ChunkID:  rapid.StringMatching(`c[0-9]{1,4}`).Draw(t, "id"),
				Text:     "lorem ipsum",
				Distance: rapid.Float64Range(0, 1).Draw(t, "distance"),
			}
		}
		k := rapid.IntRange(1, n).Draw(t, "k")

		got := a.Rerank("zzz qqq", candidates, k)
		require.Len(t, got, k)
		for i := 1; i < len(got); i++ {
			assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
		}
	})
}

// 重排性质：重排后首位的组合分是全体候选的最小值.
func TestRerankTopOneNonDegradation(t *testing.T) {
	t.Parallel()

	cfg := DefaultAugmentConfig()
	a := NewAugmenter(nil, cfg, nil, nil)
	query := "vector database index"
	queryTokens := tokenize(query)

	combined := func(c RetrievalCandidate) float64 {
		return c.Distance - cfg.KeywordWeight*float64(keywordOverlap(queryTokens, c.Text))
	}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 15).Draw(t, "n")
		words := []string{"vector", "database", "index", "tree", "cache", "log"}
		candidates := make([]RetrievalCandidate, n)
		for i := range candidates {
			var sb strings.Builder
			for _, w := range rapid.SliceOfN(rapid.SampledFrom(words), 0, 8).Draw(t, "words") {
				sb.WriteString(w)
				sb.WriteString(" ")
			}
			candidates[i] = RetrievalCandidate{
				ChunkID:  "c",
				Text:     sb.String(),
				Distance: rapid.Float64Range(0, 1).Draw(t, "distance"),
			}
		}

		got := a.Rerank(query, candidates, 1)
		require.Len(t, got, 1)
		for _, c := range candidates {
			assert.LessOrEqual(t, combined(got[0]), combined(c)+1e-12)
		}
	})
}

func TestCompressSkipsShortCandidates(t *testing.T) {
	t.Parallel()

	provider := textProvider("should not be called")
	a := NewAugmenter(provider, DefaultAugmentConfig(), nil, nil)

	candidates := []RetrievalCandidate{
		{ChunkID: "short", Text: "well under the threshold"},
	}

	got, n := a.Compress(context.Background(), "query", candidates)
	assert.Zero(t, n)
	assert.Equal(t, "well under the threshold", got[0].Text)
	assert.Zero(t, provider.callCount())
}

func TestCompressReplacesLongCandidates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("relevant passage here. ", 30) // > 500 字符
	extracted := strings.Repeat("relevant passage here. ", 10)

	a := NewAugmenter(textProvider(extracted), DefaultAugmentConfig(), nil, nil)

	candidates := []RetrievalCandidate{
		{ChunkID: "long", Text: long, Metadata: map[string]any{"lang": "en"}},
	}

	got, n := a.Compress(context.Background(), "query", candidates)
	assert.Equal(t, 1, n)
	assert.Equal(t, strings.TrimSpace(extracted), got[0].Text)
	assert.Equal(t, true, got[0].Metadata[MetaCompressed])
	assert.Equal(t, len([]rune(long)), got[0].Metadata[MetaOriginalLength])
	assert.Equal(t, "en", got[0].Metadata["lang"])

	// 原候选元数据不被污染
	assert.Nil(t, candidates[0].Metadata[MetaCompressed])
}

func TestCompressKeepsOriginalWhenTooAggressive(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 600)

	// 压缩结果低于原文 20%，保留原文
	a := NewAugmenter(textProvider("tiny"), DefaultAugmentConfig(), nil, nil)
	got, n := a.Compress(context.Background(), "query", []RetrievalCandidate{{ChunkID: "c", Text: long}})
	assert.Zero(t, n)
	assert.Equal(t, long, got[0].Text)
	assert.Nil(t, got[0].Metadata[MetaCompressed])
}

func TestCompressKeepsOriginalOnError(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 600)

	a := NewAugmenter(failingProvider(errors.New("provider down")), DefaultAugmentConfig(), nil, nil)
	got, n := a.Compress(context.Background(), "query", []RetrievalCandidate{{ChunkID: "c", Text: long}})
	assert.Zero(t, n)
	assert.Equal(t, long, got[0].Text)
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"go", "1", "21", "generics"}, tokenize("Go 1.21: Generics!"))
	assert.Empty(t, tokenize("  ...  "))
}

func TestKeywordOverlap(t *testing.T) {
	t.Parallel()

	q := tokenize("go concurrency")
	assert.Equal(t, 3, keywordOverlap(q, "Go channels make Go concurrency simple"))
	assert.Zero(t, keywordOverlap(q, "python asyncio"))
	assert.Zero(t, keywordOverlap(nil, "anything"))
}

package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/kb-rag/internal/core/embedding"
	"github.com/jinford/kb-rag/internal/core/vectorindex"
)

// stubEmbedder はテスト用の決定的な埋め込み実装
type stubEmbedder struct {
	dimension int
	vectors   map[string][]float32
	err       error
}

var _ embedding.Embedder = (*stubEmbedder)(nil)

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, s.dimension), nil
}

func (s *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int    { return s.dimension }
func (s *stubEmbedder) MaxBatchSize() int { return 100 }
func (s *stubEmbedder) ModelName() string { return "stub-embedder" }

// stubIndex は固定の検索結果を返すテスト用インデックス
type stubIndex struct {
	vectorSize int
	results    []vectorindex.SearchResult
	searchErr  error
	lastParams vectorindex.SearchParams
}

var _ vectorindex.Index = (*stubIndex)(nil)

func (s *stubIndex) InsertOne(context.Context, vectorindex.Point) error    { return nil }
func (s *stubIndex) InsertMany(context.Context, []vectorindex.Point) error { return nil }

func (s *stubIndex) Search(_ context.Context, _ []float32, params vectorindex.SearchParams) ([]vectorindex.SearchResult, error) {
	s.lastParams = params
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.results, nil
}

func (s *stubIndex) Delete(context.Context, []string) error { return nil }
func (s *stubIndex) Count(context.Context) int64            { return int64(len(s.results)) }
func (s *stubIndex) Clear(context.Context) error            { return nil }
func (s *stubIndex) CollectionName() string                 { return "stub" }
func (s *stubIndex) VectorSize() int                        { return s.vectorSize }

// stubGenerator は呼び出し回数を記録するテスト用の回答生成器
type stubGenerator struct {
	calls  int
	answer *GeneratedAnswer
	err    error
}

var _ Generator = (*stubGenerator)(nil)

func (s *stubGenerator) Generate(_ context.Context, _ string, _ []ContextItem) (*GeneratedAnswer, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.answer, nil
}

func searchResult(id, text, source string, score float64) vectorindex.SearchResult {
	return vectorindex.SearchResult{
		ID:    id,
		Score: score,
		Payload: map[string]any{
			"text":   text,
			"source": source,
		},
	}
}

func TestNewRetriever_DimensionMismatch(t *testing.T) {
	embedder := &stubEmbedder{dimension: 3}
	index := &stubIndex{vectorSize: 4}

	_, err := NewRetriever(embedder, index)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestRetriever_Search(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2}
	index := &stubIndex{
		vectorSize: 2,
		results: []vectorindex.SearchResult{
			searchResult("a", "first chunk", "doc.md", 0.95),
			searchResult("b", "second chunk", "doc.md", 0.80),
		},
	}

	retriever, err := NewRetriever(embedder, index, WithTopK(3), WithScoreThreshold(0.5))
	require.NoError(t, err)

	contexts, err := retriever.Search(context.Background(), "question", map[string]any{"category": "faq"})
	require.NoError(t, err)
	require.Len(t, contexts, 2)

	assert.Equal(t, "first chunk", contexts[0].Text)
	assert.Equal(t, "doc.md", contexts[0].Source)
	assert.InDelta(t, 0.95, contexts[0].Score, 1e-6)

	// 検索パラメータがインデックスまで伝播する
	assert.Equal(t, 3, index.lastParams.TopK)
	assert.Equal(t, mo.Some(0.5), index.lastParams.ScoreThreshold)
	assert.Equal(t, map[string]any{"category": "faq"}, index.lastParams.Filter)
}

func TestRetriever_Search_EmbedError(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2, err: errors.New("embedding backend down")}
	index := &stubIndex{vectorSize: 2}

	retriever, err := NewRetriever(embedder, index)
	require.NoError(t, err)

	_, err = retriever.Search(context.Background(), "question", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}

func TestRetriever_Query_NoContext(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2}
	index := &stubIndex{vectorSize: 2}
	generator := &stubGenerator{answer: &GeneratedAnswer{Answer: "should not be used"}}

	retriever, err := NewRetriever(embedder, index, WithGenerator(generator))
	require.NoError(t, err)

	answer, err := retriever.Query(context.Background(), "unknown topic", nil)
	require.NoError(t, err)

	// コンテキストゼロ件では Generator を呼ばずに固定回答を返す
	assert.Equal(t, 0, generator.calls)
	assert.Equal(t, noContextAnswer, answer.Answer)
	assert.Empty(t, answer.Citations)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.Equal(t, 0, answer.ContextCount)
}

func TestRetriever_Query_GeneratedAnswer(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2}
	index := &stubIndex{
		vectorSize: 2,
		results: []vectorindex.SearchResult{
			searchResult("a", "vpn setup steps", "vpn.md", 0.92),
			searchResult("b", "vpn troubleshooting", "vpn.md", 0.85),
			searchResult("c", "office hours", "general.md", 0.75),
		},
	}
	generator := &stubGenerator{answer: &GeneratedAnswer{
		Answer:            "Follow the VPN setup steps in vpn.md.",
		Citations:         []Citation{{Source: "vpn.md"}},
		Confidence:        0.9,
		FollowUpQuestions: []string{"q1", "q2", "q3", "q4", "q5"},
	}}

	retriever, err := NewRetriever(embedder, index, WithGenerator(generator))
	require.NoError(t, err)

	answer, err := retriever.Query(context.Background(), "how to set up vpn", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, generator.calls)
	assert.Equal(t, "Follow the VPN setup steps in vpn.md.", answer.Answer)
	assert.Equal(t, 3, answer.ContextCount)
	assert.InDelta(t, 0.9, answer.Confidence, 1e-6)

	// フォローアップ質問は3件に切り詰められる
	assert.Len(t, answer.FollowUpQuestions, 3)

	// 出典はモデルが報告したもののみ（検索でヒットしただけの general.md は含まれない）
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "vpn.md", answer.Citations[0].Source)
}

func TestRetriever_Query_NoReportedCitations(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2}
	index := &stubIndex{
		vectorSize: 2,
		results:    []vectorindex.SearchResult{searchResult("a", "text", "doc.md", 0.9)},
	}
	generator := &stubGenerator{answer: &GeneratedAnswer{Answer: "ok", Confidence: 0.5}}

	retriever, err := NewRetriever(embedder, index, WithGenerator(generator))
	require.NoError(t, err)

	answer, err := retriever.Query(context.Background(), "question", nil)
	require.NoError(t, err)

	// モデルが出典を報告しなかった場合は空のリストになる（nilではない）
	require.NotNil(t, answer.Citations)
	assert.Empty(t, answer.Citations)
}

func TestRetriever_Query_GenerationFailure(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2}
	index := &stubIndex{
		vectorSize: 2,
		results: []vectorindex.SearchResult{
			searchResult("a", "some context", "doc.md", 0.9),
		},
	}
	generator := &stubGenerator{err: errors.New("llm timeout")}

	retriever, err := NewRetriever(embedder, index, WithGenerator(generator))
	require.NoError(t, err)

	answer, err := retriever.Query(context.Background(), "question", nil)

	// 生成失敗はエラーとして伝播せず、縮退回答になる
	require.NoError(t, err)
	assert.Contains(t, answer.Answer, "An error occurred while generating the answer")
	assert.Contains(t, answer.Answer, "llm timeout")
	assert.Equal(t, "llm timeout", answer.ErrorDetail)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.Equal(t, 1, answer.ContextCount)

	// 縮退回答の出典は空になる
	assert.Empty(t, answer.Citations)
}

func TestRetriever_Query_WithoutGenerator(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2}
	index := &stubIndex{
		vectorSize: 2,
		results: []vectorindex.SearchResult{
			searchResult("a", "relevant text", "doc.md", 0.88),
			searchResult("b", "more from the same file", "doc.md", 0.80),
		},
	}

	retriever, err := NewRetriever(embedder, index)
	require.NoError(t, err)

	answer, err := retriever.Query(context.Background(), "question", nil)
	require.NoError(t, err)

	assert.Contains(t, answer.Answer, "relevant text")
	assert.InDelta(t, 0.88, answer.Confidence, 1e-6)
	assert.Equal(t, 2, answer.ContextCount)

	// 検索のみの回答では取得コンテキストが出典になり、同一出典は重複排除される
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "doc.md", answer.Citations[0].Source)
}

func TestRetriever_Query_ConfidenceClamped(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2}
	index := &stubIndex{
		vectorSize: 2,
		results:    []vectorindex.SearchResult{searchResult("a", "text", "doc.md", 0.9)},
	}
	generator := &stubGenerator{answer: &GeneratedAnswer{Answer: "ok", Confidence: 1.7}}

	retriever, err := NewRetriever(embedder, index, WithGenerator(generator))
	require.NoError(t, err)

	answer, err := retriever.Query(context.Background(), "question", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, answer.Confidence)
}

func TestRetriever_QueryAsync(t *testing.T) {
	embedder := &stubEmbedder{dimension: 2}
	index := &stubIndex{
		vectorSize: 2,
		results:    []vectorindex.SearchResult{searchResult("a", "text", "doc.md", 0.9)},
	}
	generator := &stubGenerator{answer: &GeneratedAnswer{Answer: "async answer", Confidence: 0.8}}

	retriever, err := NewRetriever(embedder, index, WithGenerator(generator))
	require.NoError(t, err)

	result := <-retriever.QueryAsync(context.Background(), "question", nil)
	require.NoError(t, result.Err)
	require.NotNil(t, result.Answer)
	assert.Equal(t, "async answer", result.Answer.Answer)
}

func TestFormatContext(t *testing.T) {
	contexts := []ContextItem{
		{Text: "first", Source: "a.pdf", Page: mo.Some(3), Section: "Intro"},
		{Text: "second", Source: "b.md", Page: mo.None[int]()},
	}

	formatted := FormatContext(contexts)

	assert.Contains(t, formatted, "--- Context 1 ---")
	assert.Contains(t, formatted, "--- Context 2 ---")
	assert.Contains(t, formatted, "Source: a.pdf (page 3) [Intro]")
	assert.Contains(t, formatted, "Source: b.md")
	assert.True(t, strings.Index(formatted, "first") < strings.Index(formatted, "second"))
}

func TestBuildQueryPrompt(t *testing.T) {
	contexts := []ContextItem{{Text: "vpn requires mfa", Source: "vpn.md"}}
	prompt := BuildQueryPrompt("how to connect vpn", contexts)

	assert.Contains(t, prompt, "vpn requires mfa")
	assert.Contains(t, prompt, "Question: how to connect vpn")
}

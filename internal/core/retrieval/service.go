package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/mo"

	"github.com/jinford/kb-rag/internal/core/embedding"
	"github.com/jinford/kb-rag/internal/core/vectorindex"
)

const (
	defaultTopK           = 5
	defaultScoreThreshold = 0.7

	// noContextAnswer は関連コンテキストが見つからなかった場合の固定回答
	noContextAnswer = "I could not find relevant information in the knowledge base to answer your question."
)

// Retriever は類似検索と回答生成を束ねる質問応答サービス
// Generator が設定されていない場合、Query は検索結果のみから回答を組み立てる
type Retriever struct {
	embedder       embedding.Embedder
	index          vectorindex.Index
	generator      mo.Option[Generator]
	topK           int
	scoreThreshold mo.Option[float64]
	logger         *slog.Logger
}

// RetrieverOption は Retriever のオプション設定
type RetrieverOption func(*Retriever)

// WithGenerator は回答生成に使う Generator を設定する
func WithGenerator(generator Generator) RetrieverOption {
	return func(r *Retriever) {
		r.generator = mo.Some(generator)
	}
}

// WithTopK は検索で返す最大件数を設定する
func WithTopK(topK int) RetrieverOption {
	return func(r *Retriever) {
		if topK > 0 {
			r.topK = topK
		}
	}
}

// WithScoreThreshold は検索結果の最低スコアを設定する
// 負の値を指定した場合、閾値によるフィルタリングを無効にする
func WithScoreThreshold(threshold float64) RetrieverOption {
	return func(r *Retriever) {
		if threshold < 0 {
			r.scoreThreshold = mo.None[float64]()
		} else {
			r.scoreThreshold = mo.Some(threshold)
		}
	}
}

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever は新しい Retriever を作成する
// 埋め込みの次元数とインデックスの次元数が一致しない場合はエラーを返す
func NewRetriever(embedder embedding.Embedder, index vectorindex.Index, opts ...RetrieverOption) (*Retriever, error) {
	if embedder.Dimension() != index.VectorSize() {
		return nil, fmt.Errorf("embedder dimension (%d) does not match index vector size (%d)",
			embedder.Dimension(), index.VectorSize())
	}

	r := &Retriever{
		embedder:       embedder,
		index:          index,
		generator:      mo.None[Generator](),
		topK:           defaultTopK,
		scoreThreshold: mo.Some(defaultScoreThreshold),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Search は質問に類似するコンテキストをスコア降順で取得する
func (r *Retriever) Search(ctx context.Context, query string, filter map[string]any) ([]ContextItem, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.index.Search(ctx, vector, vectorindex.SearchParams{
		TopK:           r.topK,
		ScoreThreshold: r.scoreThreshold,
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	contexts := make([]ContextItem, 0, len(results))
	for _, result := range results {
		contexts = append(contexts, contextItemFromPayload(result))
	}

	r.logger.Debug("retrieved contexts",
		"query", query,
		"contexts", len(contexts),
	)
	return contexts, nil
}

// Query は質問に対する回答をコンテキストに基づいて組み立てる
// コンテキストが見つからない場合は Generator を呼ばずに固定回答を返す
// 回答生成に失敗した場合もエラーは返さず、エラー詳細付きの縮退回答を返す
func (r *Retriever) Query(ctx context.Context, question string, filter map[string]any) (*Answer, error) {
	contexts, err := r.Search(ctx, question, filter)
	if err != nil {
		return nil, err
	}

	if len(contexts) == 0 {
		r.logger.Info("no relevant context found", "question", question)
		return &Answer{
			Answer:       noContextAnswer,
			Citations:    []Citation{},
			Confidence:   0.0,
			ContextCount: 0,
		}, nil
	}

	generator, ok := r.generator.Get()
	if !ok {
		return r.searchOnlyAnswer(contexts), nil
	}

	generated, err := generator.Generate(ctx, question, contexts)
	if err != nil {
		r.logger.Error("answer generation failed",
			"question", question,
			"error", err,
		)
		// 縮退回答の出典は空にする（どの出典が使われたか不明なため）
		return &Answer{
			Answer:       fmt.Sprintf("An error occurred while generating the answer: %v", err),
			Citations:    []Citation{},
			Confidence:   0.0,
			ContextCount: len(contexts),
			ErrorDetail:  err.Error(),
		}, nil
	}

	// 出典はモデルが回答に使ったと報告したものをそのまま採用する
	citations := generated.Citations
	if citations == nil {
		citations = []Citation{}
	}

	return &Answer{
		Answer:            generated.Answer,
		Citations:         citations,
		Confidence:        clampConfidence(generated.Confidence),
		FollowUpQuestions: truncateFollowUps(generated.FollowUpQuestions),
		ContextCount:      len(contexts),
	}, nil
}

// QueryAsync は Query を別ゴルーチンで実行し、結果を1件流すチャネルを返す
// チャネルは結果送信後にクローズされる
func (r *Retriever) QueryAsync(ctx context.Context, question string, filter map[string]any) <-chan QueryResult {
	ch := make(chan QueryResult, 1)
	go func() {
		defer close(ch)
		answer, err := r.Query(ctx, question, filter)
		ch <- QueryResult{Answer: answer, Err: err}
	}()
	return ch
}

// searchOnlyAnswer は Generator なしで検索結果のみから回答を組み立てる
func (r *Retriever) searchOnlyAnswer(contexts []ContextItem) *Answer {
	return &Answer{
		Answer:       FormatContext(contexts),
		Citations:    citationsFrom(contexts),
		Confidence:   clampConfidence(contexts[0].Score),
		ContextCount: len(contexts),
	}
}

// contextItemFromPayload は検索結果のペイロードを ContextItem に変換する
func contextItemFromPayload(result vectorindex.SearchResult) ContextItem {
	item := ContextItem{
		Score: result.Score,
		Page:  mo.None[int](),
	}
	if text, ok := result.Payload["text"].(string); ok {
		item.Text = text
	}
	if source, ok := result.Payload["source"].(string); ok {
		item.Source = source
	}
	if section, ok := result.Payload["section"].(string); ok {
		item.Section = section
	}
	if page, ok := asInt(result.Payload["page"]); ok {
		item.Page = mo.Some(page)
	}
	return item
}

// citationsFrom はコンテキスト列から重複を除いた出典リストを作る
func citationsFrom(contexts []ContextItem) []Citation {
	seen := make(map[string]struct{}, len(contexts))
	citations := make([]Citation, 0, len(contexts))
	for _, c := range contexts {
		citation := Citation{
			Source:  c.Source,
			Page:    c.Page,
			Section: c.Section,
		}
		key := fmt.Sprintf("%s|%v|%s", citation.Source, citation.Page, citation.Section)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, citation)
	}
	return citations
}

// asInt はペイロードの数値をintに変換する
// JSONデコード経由の値はfloat64になるため両方を受け付ける
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func clampConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func truncateFollowUps(questions []string) []string {
	if len(questions) > 3 {
		return questions[:3]
	}
	return questions
}

package retrieval

import (
	"context"

	"github.com/samber/mo"
)

// ContextItem は類似検索で取得されたコンテキスト1件を表す
type ContextItem struct {
	Text    string         // チャンク本文
	Source  string         // 元ドキュメントのファイル名
	Page    mo.Option[int] // ページ番号（PDFなどページ概念があるソースのみ）
	Section string         // セクション名（あれば）
	Score   float64        // クエリとのコサイン類似度
}

// Citation は回答の根拠として提示される出典を表す
type Citation struct {
	Source  string         `json:"source"`
	Page    mo.Option[int] `json:"page,omitempty"`
	Section string         `json:"section,omitempty"`
}

// GeneratedAnswer は言語モデルが生成した回答を表す
// Citations はモデルが実際に回答に使ったと報告した出典のみを含む
type GeneratedAnswer struct {
	Answer            string     `json:"answer"`
	Citations         []Citation `json:"citations"`
	Confidence        float64    `json:"confidence"`
	FollowUpQuestions []string   `json:"follow_up_questions"`
}

// Answer は質問応答の最終結果を表す
type Answer struct {
	Answer            string     `json:"answer"`
	Citations         []Citation `json:"citations"`
	Confidence        float64    `json:"confidence"`
	FollowUpQuestions []string   `json:"follow_up_questions,omitempty"`
	ContextCount      int        `json:"context_count"`
	ErrorDetail       string     `json:"error_detail,omitempty"`
}

// QueryResult は非同期の質問応答結果を表す
type QueryResult struct {
	Answer *Answer
	Err    error
}

// Generator はコンテキストに基づいて回答を生成するインターフェース
type Generator interface {
	Generate(ctx context.Context, question string, contexts []ContextItem) (*GeneratedAnswer, error)
}

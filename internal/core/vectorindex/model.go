package vectorindex

import (
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Point はベクトルインデックスに格納される1点を表す
type Point struct {
	ID      string         // 一意なポイントID（空の場合は挿入時にUUIDが採番される）
	Vector  []float32      // 埋め込みベクトル
	Payload map[string]any // チャンク本文とメタデータ
}

// NewPointID は新しいポイントIDを生成する
func NewPointID() string {
	return uuid.NewString()
}

// SearchResult は類似検索で返される1件の結果を表す
type SearchResult struct {
	ID      string
	Score   float64 // コサイン類似度（高いほど類似）
	Payload map[string]any
}

// SearchParams は類似検索のパラメータ
type SearchParams struct {
	TopK           int                // 返す最大件数
	ScoreThreshold mo.Option[float64] // 指定時、スコアがこの値未満の結果を除外する
	Filter         map[string]any     // ペイロードの完全一致フィルタ（全条件AND）
}

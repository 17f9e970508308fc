package embedding

import "context"

// Embedder はテキストを埋め込みベクトルへ変換するインターフェース
// 検索クエリとドキュメントの両方を同一モデルで埋め込む（対称埋め込み）
type Embedder interface {
	// Embed は1つのテキストを埋め込みベクトルに変換する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed は複数テキストをまとめて埋め込みベクトルに変換する
	// 返り値の順序は入力の順序と一致する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension は生成されるベクトルの次元数を返す
	Dimension() int

	// MaxBatchSize は1回のBatchEmbed呼び出しで処理できる最大テキスト数を返す
	MaxBatchSize() int

	// ModelName は使用中の埋め込みモデル名を返す
	ModelName() string
}

// TokenCounter はテキストのトークン数を数えるインターフェース
type TokenCounter interface {
	CountTokens(text string) int
}

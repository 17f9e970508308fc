package chunk

// Chunk はドキュメントから切り出された1つのチャンクを表す
type Chunk struct {
	Text     string         // チャンク本文（前後の空白は除去済み）
	Metadata map[string]any // 元ドキュメントのメタデータ + chunk_index / total_chunks
	ChunkID  int            // 親ドキュメント内での0始まりの通し番号
	Tokens   int            // トークン数（インデックス処理時にTokenCounterで付与される）
}

// SourceDocument はチャンク分割の入力となるドキュメントを表す
type SourceDocument struct {
	Text     string
	Metadata map[string]any
}

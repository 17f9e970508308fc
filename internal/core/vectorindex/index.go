package vectorindex

import "context"

// Index はベクトルインデックスのインターフェース
// 同一IDでの挿入はupsertとして扱われ、既存のベクトルとペイロードを置き換える
type Index interface {
	// InsertOne は1点をインデックスに挿入する
	InsertOne(ctx context.Context, point Point) error

	// InsertMany は複数点をまとめて挿入する
	// 空のバッチは ErrEmptyBatch を返す
	InsertMany(ctx context.Context, points []Point) error

	// Search はクエリベクトルに類似する点をスコア降順で返す
	Search(ctx context.Context, vector []float32, params SearchParams) ([]SearchResult, error)

	// Delete は指定IDの点を削除する（存在しないIDは無視する）
	Delete(ctx context.Context, ids []string) error

	// Count はインデックス内の点の総数を返す
	// 取得に失敗した場合は0を返す（エラーは内部でログに記録される）
	Count(ctx context.Context) int64

	// Clear はインデックスの全点を削除し、空のコレクションを再作成する
	Clear(ctx context.Context) error

	// CollectionName はコレクション名を返す
	CollectionName() string

	// VectorSize はコレクションのベクトル次元数を返す
	VectorSize() int
}

package document

import (
	"context"
	"errors"
)

var (
	// ErrNotFound はドキュメントが存在しない場合に返されます
	ErrNotFound = errors.New("document not found")

	// ErrInvalidTransition は許可されていない状態遷移を行おうとした場合に返されます
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository はドキュメントの永続化を担うインターフェース
type Repository interface {
	// Create は新しいドキュメントを登録する
	Create(ctx context.Context, doc *Document) error

	// Get はIDでドキュメントを取得する
	Get(ctx context.Context, id string) (*Document, error)

	// GetByFilePath はファイルパスでドキュメントを取得する
	GetByFilePath(ctx context.Context, filePath string) (*Document, error)

	// ListPending は pending 状態のドキュメントを登録順に返す
	ListPending(ctx context.Context) ([]*Document, error)

	// MarkProcessing はドキュメントを processing 状態に遷移させる
	MarkProcessing(ctx context.Context, id string) error

	// MarkIndexed はドキュメントを indexed 状態に遷移させ、チャンク数を記録する
	MarkIndexed(ctx context.Context, id string, chunkCount int) error

	// MarkFailed はドキュメントを failed 状態に遷移させ、失敗理由を記録する
	MarkFailed(ctx context.Context, id string, reason string) error

	// CountByStatus はステータスごとのドキュメント数を返す
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

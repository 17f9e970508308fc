package document

import (
	"time"

	"github.com/google/uuid"
)

// Status はドキュメントのインデックス状態を表す
type Status string

const (
	StatusPending    Status = "pending"    // 登録済み・未処理
	StatusProcessing Status = "processing" // インデックス処理中
	StatusIndexed    Status = "indexed"    // インデックス完了
	StatusFailed     Status = "failed"     // インデックス失敗
)

// Valid は既知のステータスかどうかを返す
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusIndexed, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo は s から next への状態遷移が許可されているかを返す
// 許可される遷移: pending→processing, processing→indexed, processing→failed,
// failed→pending（再試行）, indexed→pending（再インデックス）
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusIndexed || next == StatusFailed
	case StatusFailed, StatusIndexed:
		return next == StatusPending
	default:
		return false
	}
}

// Document はナレッジベースに登録された1つのドキュメントを表す
type Document struct {
	ID          string
	Title       string
	Description string // ドキュメントの概要（任意）
	FilePath    string
	FileType    string // "txt" / "md" / "pdf"
	Category    string
	Status      Status
	ChunkCount  int
	Error       string // Status が failed の場合の失敗理由
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IndexedAt   *time.Time
}

// NewDocument は pending 状態の新しいドキュメントを作成する
func NewDocument(title, filePath, fileType, category string) *Document {
	now := time.Now()
	return &Document{
		ID:        uuid.NewString(),
		Title:     title,
		FilePath:  filePath,
		FileType:  fileType,
		Category:  category,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

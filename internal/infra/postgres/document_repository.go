package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/kb-rag/internal/core/document"
	"github.com/jinford/kb-rag/pkg/db"
)

// DocumentRepository は document.Repository の PostgreSQL 実装
type DocumentRepository struct {
	db *db.DB
}

// NewDocumentRepository は新しい DocumentRepository を作成し、スキーマを用意する
func NewDocumentRepository(ctx context.Context, database *db.DB) (*DocumentRepository, error) {
	r := &DocumentRepository{db: database}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DocumentRepository) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			file_path TEXT NOT NULL UNIQUE,
			file_type TEXT NOT NULL,
			category TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			chunk_count INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			indexed_at TIMESTAMPTZ
		)`
	if _, err := r.db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`
	if _, err := r.db.Pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("failed to create documents status index: %w", err)
	}
	return nil
}

// Create は新しいドキュメントを登録する
func (r *DocumentRepository) Create(ctx context.Context, doc *document.Document) error {
	docID, err := uuid.Parse(doc.ID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", doc.ID, err)
	}

	query := `
		INSERT INTO documents (id, title, description, file_path, file_type, category, status, chunk_count, error, created_at, updated_at, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.db.Pool.Exec(ctx, query,
		UUIDToPgtype(docID),
		doc.Title,
		StringToNullableText(doc.Description),
		doc.FilePath,
		doc.FileType,
		StringToNullableText(doc.Category),
		string(doc.Status),
		doc.ChunkCount,
		StringToNullableText(doc.Error),
		TimeToPgtype(doc.CreatedAt),
		TimeToPgtype(doc.UpdatedAt),
		TimePtrToPgtype(doc.IndexedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Get はIDでドキュメントを取得する
func (r *DocumentRepository) Get(ctx context.Context, id string) (*document.Document, error) {
	docID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", id, err)
	}

	query := selectDocuments + ` WHERE id = $1`
	return r.queryOne(ctx, query, UUIDToPgtype(docID))
}

// GetByFilePath はファイルパスでドキュメントを取得する
func (r *DocumentRepository) GetByFilePath(ctx context.Context, filePath string) (*document.Document, error) {
	query := selectDocuments + ` WHERE file_path = $1`
	return r.queryOne(ctx, query, filePath)
}

// ListPending は pending 状態のドキュメントを登録順に返す
func (r *DocumentRepository) ListPending(ctx context.Context) ([]*document.Document, error) {
	query := selectDocuments + ` WHERE status = $1 ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, query, string(document.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}
	defer rows.Close()

	var docs []*document.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// MarkProcessing はドキュメントを processing 状態に遷移させる
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, id, document.StatusProcessing, func(q string) (string, []any) {
		return q, nil
	})
}

// MarkIndexed はドキュメントを indexed 状態に遷移させ、チャンク数と完了時刻を記録する
func (r *DocumentRepository) MarkIndexed(ctx context.Context, id string, chunkCount int) error {
	return r.transition(ctx, id, document.StatusIndexed, func(q string) (string, []any) {
		return q + `, chunk_count = $4, indexed_at = now(), error = NULL`, []any{chunkCount}
	})
}

// MarkFailed はドキュメントを failed 状態に遷移させ、失敗理由を記録する
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.transition(ctx, id, document.StatusFailed, func(q string) (string, []any) {
		return q + `, error = $4`, []any{reason}
	})
}

// transition は現在の状態を確認した上でステータスを更新する
// 許可されていない遷移は document.ErrInvalidTransition を返す
func (r *DocumentRepository) transition(ctx context.Context, id string, next document.Status, extend func(string) (string, []any)) error {
	docID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", id, err)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, UUIDToPgtype(docID)).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return document.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get document status: %w", err)
	}

	if !document.Status(current).CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", document.ErrInvalidTransition, current, next)
	}

	update := `UPDATE documents SET status = $2, updated_at = now()`
	update, extra := extend(update)
	update += ` WHERE id = $1 AND status = $3`

	args := append([]any{UUIDToPgtype(docID), string(next), current}, extra...)
	if _, err := tx.Exec(ctx, update, args...); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status transition: %w", err)
	}
	return nil
}

// CountByStatus はステータスごとのドキュメント数を返す
func (r *DocumentRepository) CountByStatus(ctx context.Context) (map[document.Status]int64, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, count(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[document.Status]int64)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[document.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

const selectDocuments = `
	SELECT id, title, description, file_path, file_type, category, status, chunk_count, error, created_at, updated_at, indexed_at
	FROM documents`

func (r *DocumentRepository) queryOne(ctx context.Context, query string, args ...any) (*document.Document, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query document: %w", err)
		}
		return nil, document.ErrNotFound
	}
	return scanDocument(rows)
}

func scanDocument(rows pgx.Rows) (*document.Document, error) {
	var (
		doc         document.Document
		id          pgtype.UUID
		description pgtype.Text
		category    pgtype.Text
		status      string
		errText     pgtype.Text
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
		indexedAt   pgtype.Timestamptz
	)
	if err := rows.Scan(&id, &doc.Title, &description, &doc.FilePath, &doc.FileType, &category, &status, &doc.ChunkCount, &errText, &createdAt, &updatedAt, &indexedAt); err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	doc.ID = PgtypeToUUID(id).String()
	doc.Description = PgtextToString(description)
	doc.Category = PgtextToString(category)
	doc.Status = document.Status(status)
	doc.Error = PgtextToString(errText)
	doc.CreatedAt = PgtypeToTime(createdAt)
	doc.UpdatedAt = PgtypeToTime(updatedAt)
	doc.IndexedAt = PgtypeToTimePtr(indexedAt)
	return &doc, nil
}

// インターフェース実装の確認
var _ document.Repository = (*DocumentRepository)(nil)

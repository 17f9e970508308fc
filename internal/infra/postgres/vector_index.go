package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/kb-rag/internal/core/vectorindex"
	"github.com/jinford/kb-rag/pkg/db"
)

// collectionNamePattern はテーブル名として安全なコレクション名の形式
// コレクション名はSQLに直接埋め込まれるため、識別子として検証する
var collectionNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// VectorIndex は pgvector を使った vectorindex.Index の PostgreSQL 実装
// 1コレクション = 1テーブルとして扱い、ペイロードはJSONBカラムに格納する
type VectorIndex struct {
	db         *db.DB
	collection string
	vectorSize int
	logger     *slog.Logger
}

// VectorIndexOption は VectorIndex のオプション設定
type VectorIndexOption func(*VectorIndex)

// WithVectorIndexLogger は VectorIndex にロガーを設定する
func WithVectorIndexLogger(logger *slog.Logger) VectorIndexOption {
	return func(v *VectorIndex) {
		v.logger = logger
	}
}

// NewVectorIndex は新しい VectorIndex を作成し、コレクションのテーブルを用意する
// 既存のテーブルがある場合はそのまま使う（冪等）
func NewVectorIndex(ctx context.Context, database *db.DB, collection string, vectorSize int, opts ...VectorIndexOption) (*VectorIndex, error) {
	if !collectionNamePattern.MatchString(collection) {
		return nil, fmt.Errorf("%w: %q", vectorindex.ErrInvalidCollectionName, collection)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("vector size must be positive, got %d", vectorSize)
	}

	v := &VectorIndex{
		db:         database,
		collection: collection,
		vectorSize: vectorSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := v.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VectorIndex) ensureCollection(ctx context.Context) error {
	if _, err := v.db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			embedding VECTOR(%d) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, v.collection, v.vectorSize)
	if _, err := v.db.Pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create collection table %s: %w", v.collection, err)
	}

	createIndex := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
		v.collection, v.collection)
	if _, err := v.db.Pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create embedding index on %s: %w", v.collection, err)
	}

	return nil
}

// InsertOne は1点を挿入する（同一IDはupsert）
func (v *VectorIndex) InsertOne(ctx context.Context, point vectorindex.Point) error {
	return v.InsertMany(ctx, []vectorindex.Point{point})
}

// InsertMany は複数点をバッチで挿入する（同一IDはupsert）
func (v *VectorIndex) InsertMany(ctx context.Context, points []vectorindex.Point) error {
	if len(points) == 0 {
		return vectorindex.ErrEmptyBatch
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload`, v.collection)

	batch := &pgx.Batch{}
	for i, point := range points {
		if len(point.Vector) != v.vectorSize {
			return fmt.Errorf("%w: point %d: expected %d, got %d", vectorindex.ErrSizeMismatch, i, v.vectorSize, len(point.Vector))
		}

		id := point.ID
		if id == "" {
			id = vectorindex.NewPointID()
		}
		pointID, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid point id %q: %w", id, err)
		}

		payload, err := JSONBFromMap(point.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload for point %s: %w", id, err)
		}

		batch.Queue(upsert, UUIDToPgtype(pointID), pgvector.NewVector(point.Vector), payload)
	}

	results := v.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert points into %s: %w", v.collection, err)
		}
	}
	return nil
}

// Search はクエリベクトルに類似する点をコサイン類似度の降順で返す
func (v *VectorIndex) Search(ctx context.Context, vector []float32, params vectorindex.SearchParams) ([]vectorindex.SearchResult, error) {
	if len(vector) != v.vectorSize {
		return nil, fmt.Errorf("%w: expected %d, got %d", vectorindex.ErrSizeMismatch, v.vectorSize, len(vector))
	}

	query := fmt.Sprintf(`
		SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM %s`, v.collection)
	args := []any{pgvector.NewVector(vector)}

	var conditions []string
	if len(params.Filter) > 0 {
		filterJSON, err := JSONBFromMap(params.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		args = append(args, filterJSON)
		conditions = append(conditions, fmt.Sprintf("payload @> $%d", len(args)))
	}
	if threshold, ok := params.ScoreThreshold.Get(); ok {
		args = append(args, threshold)
		conditions = append(conditions, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}

	for i, cond := range conditions {
		if i == 0 {
			query += "\n\t\tWHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	query += "\n\t\tORDER BY embedding <=> $1"
	if params.TopK > 0 {
		args = append(args, params.TopK)
		query += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	rows, err := v.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", v.collection, err)
	}
	defer rows.Close()

	var results []vectorindex.SearchResult
	for rows.Next() {
		var (
			id      pgtype.UUID
			payload []byte
			score   float64
		)
		if err := rows.Scan(&id, &payload, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		pointID := PgtypeToUUID(id)
		payloadMap, err := MapFromJSONB(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload for point %s: %w", pointID, err)
		}

		results = append(results, vectorindex.SearchResult{
			ID:      pointID.String(),
			Score:   score,
			Payload: payloadMap,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}
	return results, nil
}

// Delete は指定IDの点を削除する（存在しないIDは無視する）
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		pointID, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid point id %q: %w", id, err)
		}
		pointIDs = append(pointIDs, pointID)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, v.collection)
	if _, err := v.db.Pool.Exec(ctx, query, pointIDs); err != nil {
		return fmt.Errorf("failed to delete points from %s: %w", v.collection, err)
	}
	return nil
}

// Count は点の総数を返す
// 取得に失敗した場合は0を返し、エラーをログに記録する
func (v *VectorIndex) Count(ctx context.Context) int64 {
	var count int64
	query := fmt.Sprintf(`SELECT count(*) FROM %s`, v.collection)
	if err := v.db.Pool.QueryRow(ctx, query).Scan(&count); err != nil {
		v.logger.Error("failed to count points",
			"collection", v.collection,
			"error", err,
		)
		return 0
	}
	return count
}

// Clear はコレクションのテーブルを削除して空の状態で再作成する
func (v *VectorIndex) Clear(ctx context.Context) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, v.collection)
	if _, err := v.db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to drop collection table %s: %w", v.collection, err)
	}
	return v.ensureCollection(ctx)
}

// CollectionName はコレクション名を返す
func (v *VectorIndex) CollectionName() string {
	return v.collection
}

// VectorSize はベクトル次元数を返す
func (v *VectorIndex) VectorSize() int {
	return v.vectorSize
}

// インターフェース実装の確認
var _ vectorindex.Index = (*VectorIndex)(nil)

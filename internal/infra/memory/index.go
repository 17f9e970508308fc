package memory

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/jinford/kb-rag/internal/core/embedding"
	"github.com/jinford/kb-rag/internal/core/vectorindex"
)

// インターフェース実装の確認
var _ vectorindex.Index = (*Index)(nil)

// Index はベクトルインデックスのインメモリ実装
// 全点の線形スキャンでコサイン類似度を計算するため、小規模データとテスト用途に向く
type Index struct {
	mu             sync.RWMutex
	points         map[string]vectorindex.Point
	collectionName string
	vectorSize     int
	logger         *slog.Logger
}

// IndexOption は Index のオプション設定
type IndexOption func(*Index)

// WithIndexLogger は Index にロガーを設定する
func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) {
		i.logger = logger
	}
}

// NewIndex は新しいインメモリインデックスを作成する
func NewIndex(collectionName string, vectorSize int, opts ...IndexOption) *Index {
	i := &Index{
		points:         make(map[string]vectorindex.Point),
		collectionName: collectionName,
		vectorSize:     vectorSize,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InsertOne は1点をインデックスに挿入する
func (i *Index) InsertOne(_ context.Context, point vectorindex.Point) error {
	if len(point.Vector) != i.vectorSize {
		return fmt.Errorf("%w: expected %d, got %d", vectorindex.ErrSizeMismatch, i.vectorSize, len(point.Vector))
	}
	if point.ID == "" {
		point.ID = vectorindex.NewPointID()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.points[point.ID] = point
	return nil
}

// InsertMany は複数点をまとめて挿入する
func (i *Index) InsertMany(_ context.Context, points []vectorindex.Point) error {
	if len(points) == 0 {
		return vectorindex.ErrEmptyBatch
	}
	for idx, point := range points {
		if len(point.Vector) != i.vectorSize {
			return fmt.Errorf("%w: point %d: expected %d, got %d", vectorindex.ErrSizeMismatch, idx, i.vectorSize, len(point.Vector))
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for _, point := range points {
		if point.ID == "" {
			point.ID = vectorindex.NewPointID()
		}
		i.points[point.ID] = point
	}
	return nil
}

// Search はクエリベクトルに類似する点をスコア降順で返す
func (i *Index) Search(_ context.Context, vector []float32, params vectorindex.SearchParams) ([]vectorindex.SearchResult, error) {
	if len(vector) != i.vectorSize {
		return nil, fmt.Errorf("%w: expected %d, got %d", vectorindex.ErrSizeMismatch, i.vectorSize, len(vector))
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	results := make([]vectorindex.SearchResult, 0, len(i.points))
	for _, point := range i.points {
		if !matchesFilter(point.Payload, params.Filter) {
			continue
		}

		score, err := embedding.CosineSimilarity(vector, point.Vector)
		if err != nil {
			return nil, fmt.Errorf("failed to compute similarity: %w", err)
		}
		if threshold, ok := params.ScoreThreshold.Get(); ok && score < threshold {
			continue
		}

		results = append(results, vectorindex.SearchResult{
			ID:      point.ID,
			Score:   score,
			Payload: point.Payload,
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})

	if params.TopK > 0 && len(results) > params.TopK {
		results = results[:params.TopK]
	}
	return results, nil
}

// Delete は指定IDの点を削除する
func (i *Index) Delete(_ context.Context, ids []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, id := range ids {
		delete(i.points, id)
	}
	return nil
}

// Count はインデックス内の点の総数を返す
func (i *Index) Count(_ context.Context) int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return int64(len(i.points))
}

// Clear はインデックスの全点を削除する
func (i *Index) Clear(_ context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.points = make(map[string]vectorindex.Point)
	return nil
}

// CollectionName はコレクション名を返す
func (i *Index) CollectionName() string {
	return i.collectionName
}

// VectorSize はベクトル次元数を返す
func (i *Index) VectorSize() int {
	return i.vectorSize
}

// matchesFilter はペイロードがフィルタの全条件に完全一致するかを判定する
// ペイロード値にはスライス等の比較不能な型も入るため reflect.DeepEqual で比較する
func matchesFilter(payload, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := payload[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

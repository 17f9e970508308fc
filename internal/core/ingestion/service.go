package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/kb-rag/internal/core/chunk"
	"github.com/jinford/kb-rag/internal/core/document"
	"github.com/jinford/kb-rag/internal/core/embedding"
	"github.com/jinford/kb-rag/internal/core/vectorindex"
)

// Stats はインデックス処理の結果サマリ
type Stats struct {
	Registered int // 新規登録されたドキュメント数
	Indexed    int // インデックスに成功したドキュメント数
	Failed     int // インデックスに失敗したドキュメント数
	Chunks     int // 生成されたチャンクの総数
}

// Service はドキュメントの読み込みからベクトルインデックス登録までを束ねる
// 1ドキュメントの失敗は記録して次のドキュメントへ進む（バッチ全体を止めない）
type Service struct {
	chunker   *chunk.Chunker
	embedder  embedding.Embedder
	index     vectorindex.Index
	documents document.Repository
	loader    Loader
	tokens    embedding.TokenCounter
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithTokenCounter はチャンクのトークン数計測に使う TokenCounter を設定する
func WithTokenCounter(counter embedding.TokenCounter) ServiceOption {
	return func(s *Service) {
		s.tokens = counter
	}
}

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
// 埋め込みの次元数とインデックスの次元数が一致しない場合はエラーを返す
func NewService(
	chunker *chunk.Chunker,
	embedder embedding.Embedder,
	index vectorindex.Index,
	documents document.Repository,
	loader Loader,
	opts ...ServiceOption,
) (*Service, error) {
	if embedder.Dimension() != index.VectorSize() {
		return nil, fmt.Errorf("embedder dimension (%d) does not match index vector size (%d)",
			embedder.Dimension(), index.VectorSize())
	}

	s := &Service{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		documents: documents,
		loader:    loader,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IndexDirectory はディレクトリ配下のファイルをドキュメントとして登録し、未処理分をインデックスする
// すでに登録済みのファイルパスはスキップされる
func (s *Service) IndexDirectory(ctx context.Context, dir, category string) (*Stats, error) {
	files, err := s.loader.LoadDirectory(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory %s: %w", dir, err)
	}

	registered := 0
	for _, file := range files {
		_, err := s.documents.GetByFilePath(ctx, file.Path)
		if err == nil {
			continue
		}
		if !errors.Is(err, document.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up document %s: %w", file.Path, err)
		}

		doc := document.NewDocument(file.Document.Title, file.Path, file.Document.FileType, category)
		if err := s.documents.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to register document %s: %w", file.Path, err)
		}
		registered++

		s.logger.Info("registered document",
			"documentID", doc.ID,
			"path", file.Path,
			"fileType", doc.FileType,
		)
	}

	stats, err := s.IndexPending(ctx)
	if err != nil {
		return nil, err
	}
	stats.Registered = registered
	return stats, nil
}

// IndexPending は pending 状態の全ドキュメントを順にインデックスする
func (s *Service) IndexPending(ctx context.Context) (*Stats, error) {
	pending, err := s.documents.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending documents: %w", err)
	}

	stats := &Stats{}
	for _, doc := range pending {
		if err := s.documents.MarkProcessing(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("failed to mark document %s as processing: %w", doc.ID, err)
		}

		chunkCount, err := s.indexDocument(ctx, doc)
		if err != nil {
			s.logger.Error("failed to index document",
				"documentID", doc.ID,
				"path", doc.FilePath,
				"error", err,
			)
			if markErr := s.documents.MarkFailed(ctx, doc.ID, err.Error()); markErr != nil {
				return nil, fmt.Errorf("failed to mark document %s as failed: %w", doc.ID, markErr)
			}
			stats.Failed++
			continue
		}

		if err := s.documents.MarkIndexed(ctx, doc.ID, chunkCount); err != nil {
			return nil, fmt.Errorf("failed to mark document %s as indexed: %w", doc.ID, err)
		}
		stats.Indexed++
		stats.Chunks += chunkCount

		s.logger.Info("indexed document",
			"documentID", doc.ID,
			"path", doc.FilePath,
			"chunks", chunkCount,
		)
	}

	return stats, nil
}

// indexDocument は1ドキュメントを読み込み、チャンク分割・埋め込み・インデックス登録を行う
func (s *Service) indexDocument(ctx context.Context, doc *document.Document) (int, error) {
	loaded, err := s.loader.Load(ctx, doc.FilePath)
	if err != nil {
		return 0, fmt.Errorf("failed to load file: %w", err)
	}

	chunks := s.chunkDocument(doc, loaded)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document produced no chunks")
	}

	points := make([]vectorindex.Point, 0, len(chunks))
	batchSize := s.embedder.MaxBatchSize()
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i, c := range batch {
			payload := make(map[string]any, len(c.Metadata)+2)
			for k, v := range c.Metadata {
				payload[k] = v
			}
			payload["text"] = c.Text
			payload["tokens"] = c.Tokens

			points = append(points, vectorindex.Point{
				ID:      vectorindex.NewPointID(),
				Vector:  vectors[i],
				Payload: payload,
			})
		}
	}

	if err := s.index.InsertMany(ctx, points); err != nil {
		return 0, fmt.Errorf("failed to insert points: %w", err)
	}

	return len(points), nil
}

// chunkDocument はドキュメントをチャンク列に分割する
// ページ概念のあるドキュメントはページ単位で分割し、チャンクにページ番号を付与する
func (s *Service) chunkDocument(doc *document.Document, loaded *LoadedDocument) []*chunk.Chunk {
	baseMetadata := map[string]any{
		"source":      loaded.Title,
		"file_type":   loaded.FileType,
		"category":    doc.Category,
		"document_id": doc.ID,
	}
	for k, v := range loaded.Metadata {
		baseMetadata[k] = v
	}

	var chunks []*chunk.Chunk
	if len(loaded.Pages) > 0 {
		for _, page := range loaded.Pages {
			metadata := make(map[string]any, len(baseMetadata)+1)
			for k, v := range baseMetadata {
				metadata[k] = v
			}
			metadata["page"] = page.Number
			chunks = append(chunks, s.chunker.ChunkText(page.Text, metadata)...)
		}
		// ページごとに振られた連番をドキュメント全体の通し番号に付け直す
		for i, c := range chunks {
			c.ChunkID = i
			c.Metadata["chunk_index"] = i
			c.Metadata["total_chunks"] = len(chunks)
		}
	} else {
		chunks = s.chunker.ChunkText(loaded.Text, baseMetadata)
	}

	if s.tokens != nil {
		for _, c := range chunks {
			c.Tokens = s.tokens.CountTokens(c.Text)
		}
	}
	return chunks
}

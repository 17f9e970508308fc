package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-rag/internal/core/chunk"
	"github.com/jinford/kb-rag/internal/core/ingestion"
	"github.com/jinford/kb-rag/internal/core/retrieval"
	"github.com/jinford/kb-rag/internal/infra/loader"
	"github.com/jinford/kb-rag/internal/infra/openai"
	"github.com/jinford/kb-rag/internal/infra/postgres"
	"github.com/jinford/kb-rag/internal/infra/tokenizer"
	"github.com/jinford/kb-rag/internal/platform/logger"
	"github.com/jinford/kb-rag/pkg/config"
	"github.com/jinford/kb-rag/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Database  *db.DB
	Index     *postgres.VectorIndex
	Documents *postgres.DocumentRepository
	Ingestion *ingestion.Service
	Retriever *retrieval.Retriever
	Logger    *slog.Logger
}

// runtimeSettings は設定ファイルの値にコマンドラインフラグの上書きを適用した実効値
type runtimeSettings struct {
	chunkCfg       chunk.Config
	topK           int
	scoreThreshold float64
}

// AppOption はコマンドラインフラグによる設定の上書き
type AppOption func(*runtimeSettings)

// WithChunkSize はチャンクサイズ（トークン単位）を上書きする
func WithChunkSize(size int) AppOption {
	return func(s *runtimeSettings) {
		s.chunkCfg.ChunkSize = size
	}
}

// WithChunkOverlap はチャンクオーバーラップ（トークン単位）を上書きする
func WithChunkOverlap(overlap int) AppOption {
	return func(s *runtimeSettings) {
		s.chunkCfg.ChunkOverlap = overlap
	}
}

// WithTopK は検索で返す最大件数を上書きする
func WithTopK(topK int) AppOption {
	return func(s *runtimeSettings) {
		s.topK = topK
	}
}

// WithScoreThreshold は検索結果の最低スコアを上書きする
func WithScoreThreshold(threshold float64) AppOption {
	return func(s *runtimeSettings) {
		s.scoreThreshold = threshold
	}
}

// resolveSettings は設定ファイルの値をデフォルトとしてフラグの上書きを適用する
func resolveSettings(cfg *config.Config, opts ...AppOption) runtimeSettings {
	settings := runtimeSettings{
		chunkCfg: chunk.Config{
			ChunkSize:    cfg.Chunking.ChunkSize,
			ChunkOverlap: cfg.Chunking.ChunkOverlap,
		},
		topK:           cfg.Retrieval.TopK,
		scoreThreshold: cfg.Retrieval.ScoreThreshold,
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return settings
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
// OPENAI_API_KEY が未設定の場合、ask コマンドは検索結果のみから回答を組み立てる
func NewAppContext(ctx context.Context, envFile string, opts ...AppOption) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	settings := resolveSettings(cfg, opts...)

	appLogger := logger.New(logger.DefaultConfig())

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	embedder := openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		openai.WithNormalize(cfg.OpenAI.NormalizeEmbeddings),
	)

	index, err := postgres.NewVectorIndex(ctx, database, cfg.VectorIndex.CollectionName, embedder.Dimension(),
		postgres.WithVectorIndexLogger(appLogger),
	)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("ベクトルインデックスの初期化に失敗: %w", err)
	}

	documents, err := postgres.NewDocumentRepository(ctx, database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("ドキュメントリポジトリの初期化に失敗: %w", err)
	}

	chunker, err := chunk.NewChunker(settings.chunkCfg, chunk.WithChunkerLogger(appLogger))
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("チャンカーの初期化に失敗: %w", err)
	}

	fileLoader := loader.NewFileLoader(loader.WithLoaderLogger(appLogger))

	ingestionOpts := []ingestion.ServiceOption{
		ingestion.WithServiceLogger(appLogger),
	}
	counter, err := tokenizer.NewCounter()
	if err != nil {
		appLogger.Warn("token counter unavailable, chunk token counts will be omitted", "error", err)
	} else {
		ingestionOpts = append(ingestionOpts, ingestion.WithTokenCounter(counter))
	}

	ingestionService, err := ingestion.NewService(chunker, embedder, index, documents, fileLoader, ingestionOpts...)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("インデックスサービスの初期化に失敗: %w", err)
	}

	retrieverOpts := []retrieval.RetrieverOption{
		retrieval.WithTopK(settings.topK),
		retrieval.WithScoreThreshold(settings.scoreThreshold),
		retrieval.WithRetrieverLogger(appLogger),
	}
	if cfg.OpenAI.APIKey != "" {
		generator, err := openai.NewGenerator(cfg.OpenAI.APIKey, openai.WithLLMModel(cfg.OpenAI.LLMModel))
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("回答生成クライアントの初期化に失敗: %w", err)
		}
		retrieverOpts = append(retrieverOpts, retrieval.WithGenerator(generator))
	} else {
		appLogger.Warn("OPENAI_API_KEY is not set, ask command will return search results only")
	}

	retriever, err := retrieval.NewRetriever(embedder, index, retrieverOpts...)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("検索サービスの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Database:  database,
		Index:     index,
		Documents: documents,
		Ingestion: ingestionService,
		Retriever: retriever,
		Logger:    appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Database != nil {
		ac.Database.Close()
	}
}

// buildFilter はカテゴリ指定からペイロードフィルタを組み立てる
func buildFilter(category string) map[string]any {
	if category == "" {
		return nil
	}
	return map[string]any{"category": category}
}

// chunkingOptions は chunk-size / chunk-overlap フラグの指定値を上書きに変換する
func chunkingOptions(cmd *cli.Command) []AppOption {
	var opts []AppOption
	if cmd.IsSet("chunk-size") {
		opts = append(opts, WithChunkSize(cmd.Int("chunk-size")))
	}
	if cmd.IsSet("chunk-overlap") {
		opts = append(opts, WithChunkOverlap(cmd.Int("chunk-overlap")))
	}
	return opts
}

// searchOptions は top-k / threshold フラグの指定値を上書きに変換する
func searchOptions(cmd *cli.Command) []AppOption {
	var opts []AppOption
	if cmd.IsSet("top-k") {
		opts = append(opts, WithTopK(cmd.Int("top-k")))
	}
	if cmd.IsSet("threshold") {
		opts = append(opts, WithScoreThreshold(cmd.Float("threshold")))
	}
	return opts
}

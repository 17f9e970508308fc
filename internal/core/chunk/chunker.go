package chunk

import (
	"fmt"
	"log/slog"
	"strings"
)

// charsPerToken はトークン数から文字数への変換係数
// 真のトークナイズは行わず、1トークン≒4文字の近似で文字バジェットを決める
const charsPerToken = 4

// oversizeFactor はこの倍率を超えたチャンクを次の区切り文字で再分割する閾値
const oversizeFactor = 1.5

// defaultSeparators は優先順に試す区切り文字列
var defaultSeparators = []string{
	"\n\n", // 段落区切り
	"\n",   // 改行
	". ",   // 文末
	"! ",
	"? ",
	"; ",
	", ",
	" ", // 最終手段の空白
}

// Config はチャンク分割の設定（トークン単位）
type Config struct {
	ChunkSize    int // 目標チャンクサイズ（デフォルト: 512）
	ChunkOverlap int // チャンク間のオーバーラップ（デフォルト: 50）
}

// DefaultConfig はデフォルトのチャンク設定を返します
func DefaultConfig() Config {
	return Config{
		ChunkSize:    512,
		ChunkOverlap: 50,
	}
}

// Chunker はドキュメントの全文をオーバーラップ付きのチャンク列に分割する
// 分割は (text, config) の純粋関数であり、同一入力は常に同一のチャンク列を返す
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	logger       *slog.Logger
}

// ChunkerOption は Chunker のオプション設定
type ChunkerOption func(*Chunker)

// WithSeparators は区切り文字列のリストを上書きする
func WithSeparators(separators []string) ChunkerOption {
	return func(c *Chunker) {
		c.separators = separators
	}
}

// WithChunkerLogger は Chunker にロガーを設定する
func WithChunkerLogger(logger *slog.Logger) ChunkerOption {
	return func(c *Chunker) {
		c.logger = logger
	}
}

// NewChunker は新しい Chunker を作成する
func NewChunker(cfg Config, opts ...ChunkerOption) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, cfg.ChunkOverlap)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)", ErrInvalidConfig, cfg.ChunkOverlap, cfg.ChunkSize)
	}

	c := &Chunker{
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		separators:   defaultSeparators,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChunkText は1つのドキュメント本文をチャンク列に分割する
// 空文字や空白のみの入力は空のチャンク列を返す（エラーにはしない）
func (c *Chunker) ChunkText(text string, metadata map[string]any) []*Chunk {
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("empty text provided for chunking")
		return nil
	}

	charChunkSize := c.chunkSize * charsPerToken
	charOverlap := c.chunkOverlap * charsPerToken

	pieces := c.splitRecursive(text, charChunkSize, charOverlap, 0)

	chunks := make([]*Chunk, 0, len(pieces))
	for idx, piece := range pieces {
		chunkMetadata := make(map[string]any, len(metadata)+2)
		for k, v := range metadata {
			chunkMetadata[k] = v
		}
		chunkMetadata["chunk_index"] = idx
		chunkMetadata["total_chunks"] = len(pieces)

		chunks = append(chunks, &Chunk{
			Text:     strings.TrimSpace(piece),
			Metadata: chunkMetadata,
			ChunkID:  idx,
		})
	}

	c.logger.Debug("created chunks from text",
		"chunks", len(chunks),
		"textLength", len(text),
	)
	return chunks
}

// ChunkDocuments は複数ドキュメントをまとめてチャンク分割する
func (c *Chunker) ChunkDocuments(docs []SourceDocument) []*Chunk {
	var all []*Chunk
	for _, doc := range docs {
		all = append(all, c.ChunkText(doc.Text, doc.Metadata)...)
	}
	return all
}

// splitRecursive は区切り文字を優先順に試しながらテキストを再帰的に分割する
// 現在の区切り文字が含まれない場合は次の区切り文字へ、全て尽きた場合は固定幅分割へフォールバックする
func (c *Chunker) splitRecursive(text string, chunkSize, overlap, separatorIdx int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	if separatorIdx >= len(c.separators) {
		return splitByWidth(text, chunkSize, overlap)
	}

	separator := c.separators[separatorIdx]
	splits := strings.Split(text, separator)

	if len(splits) == 1 {
		return c.splitRecursive(text, chunkSize, overlap, separatorIdx+1)
	}

	var chunks []string
	var current []string
	currentLength := 0

	for i, split := range splits {
		piece := split
		if i != len(splits)-1 {
			piece += separator
		}
		pieceLength := len(piece)

		if currentLength+pieceLength > chunkSize && len(current) > 0 {
			chunkText := strings.Join(current, "")
			chunks = append(chunks, chunkText)

			// 閉じたチャンクがオーバーラップ長以上ある場合のみ、
			// 末尾overlap文字を次チャンクの先頭に引き継ぐ
			if overlap > 0 && len(chunkText) >= overlap {
				overlapText := chunkText[len(chunkText)-overlap:]
				current = []string{overlapText, piece}
				currentLength = len(overlapText) + pieceLength
			} else {
				current = []string{piece}
				currentLength = pieceLength
			}
		} else {
			current = append(current, piece)
			currentLength += pieceLength
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}

	// 目標サイズの1.5倍を超えるチャンクは次の区切り文字で再分割する
	var final []string
	for _, chunkText := range chunks {
		if float64(len(chunkText)) > float64(chunkSize)*oversizeFactor {
			final = append(final, c.splitRecursive(chunkText, chunkSize, overlap, separatorIdx+1)...)
		} else {
			final = append(final, chunkText)
		}
	}

	return final
}

// splitByWidth は最終手段として固定幅のスライディングウィンドウで分割する
func splitByWidth(text string, chunkSize, overlap int) []string {
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

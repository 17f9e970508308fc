package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/kb-rag/internal/core/embedding"
)

// defaultEncoding はOpenAIの埋め込みモデルが使用するエンコーディング
const defaultEncoding = "cl100k_base"

// Counter は tiktoken によるトークン数カウンタ
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は新しい Counter を作成する
// エンコーディングデータは初回にダウンロードされ、以降はキャッシュされる
func NewCounter() (*Counter, error) {
	encoding, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %s: %w", defaultEncoding, err)
	}
	return &Counter{encoding: encoding}, nil
}

// CountTokens はテキストのトークン数を返す
func (c *Counter) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// インターフェース実装の確認
var _ embedding.TokenCounter = (*Counter)(nil)

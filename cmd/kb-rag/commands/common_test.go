package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jinford/kb-rag/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Chunking: config.ChunkingConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Retrieval: config.RetrievalConfig{
			TopK:           5,
			ScoreThreshold: 0.7,
		},
	}
}

func TestResolveSettings(t *testing.T) {
	t.Run("上書きなしの場合は設定ファイルの値を使う", func(t *testing.T) {
		settings := resolveSettings(testConfig())

		assert.Equal(t, 500, settings.chunkCfg.ChunkSize)
		assert.Equal(t, 50, settings.chunkCfg.ChunkOverlap)
		assert.Equal(t, 5, settings.topK)
		assert.Equal(t, 0.7, settings.scoreThreshold)
	})

	t.Run("チャンク設定をフラグで上書きできる", func(t *testing.T) {
		settings := resolveSettings(testConfig(), WithChunkSize(1000), WithChunkOverlap(100))

		assert.Equal(t, 1000, settings.chunkCfg.ChunkSize)
		assert.Equal(t, 100, settings.chunkCfg.ChunkOverlap)
	})

	t.Run("検索設定をフラグで上書きできる", func(t *testing.T) {
		settings := resolveSettings(testConfig(), WithTopK(10), WithScoreThreshold(0.5))

		assert.Equal(t, 10, settings.topK)
		assert.Equal(t, 0.5, settings.scoreThreshold)
	})

	t.Run("負の閾値で閾値フィルタを無効化できる", func(t *testing.T) {
		settings := resolveSettings(testConfig(), WithScoreThreshold(-1))

		assert.Equal(t, float64(-1), settings.scoreThreshold)
	})
}

func TestBuildFilter(t *testing.T) {
	t.Run("カテゴリ指定なしの場合はフィルタなし", func(t *testing.T) {
		assert.Nil(t, buildFilter(""))
	})

	t.Run("カテゴリ指定ありの場合はペイロードフィルタを組み立てる", func(t *testing.T) {
		assert.Equal(t, map[string]any{"category": "faq"}, buildFilter("faq"))
	})
}

package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunker_ConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "デフォルト設定", cfg: DefaultConfig(), wantErr: false},
		{name: "チャンクサイズが0", cfg: Config{ChunkSize: 0, ChunkOverlap: 0}, wantErr: true},
		{name: "オーバーラップが負", cfg: Config{ChunkSize: 100, ChunkOverlap: -1}, wantErr: true},
		{name: "オーバーラップがチャンクサイズ以上", cfg: Config{ChunkSize: 100, ChunkOverlap: 100}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.cfg)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestChunkText_EmptyInput(t *testing.T) {
	chunker, err := NewChunker(DefaultConfig())
	require.NoError(t, err)

	assert.Empty(t, chunker.ChunkText("", map[string]any{}))
	assert.Empty(t, chunker.ChunkText("   \n\t  ", map[string]any{}))
}

func TestChunkText_SingleChunk(t *testing.T) {
	chunker, err := NewChunker(DefaultConfig())
	require.NoError(t, err)

	chunks := chunker.ChunkText("  hello world  ", map[string]any{"source": "greeting.txt"})
	require.Len(t, chunks, 1)

	assert.Equal(t, "hello world", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].ChunkID)
	assert.Equal(t, 0, chunks[0].Metadata["chunk_index"])
	assert.Equal(t, 1, chunks[0].Metadata["total_chunks"])
	assert.Equal(t, "greeting.txt", chunks[0].Metadata["source"])
}

func TestChunkText_ChunkIDContiguity(t *testing.T) {
	chunker, err := NewChunker(Config{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	text := buildParagraphs(10, 100)
	chunks := chunker.ChunkText(text, map[string]any{"source": "doc.md"})
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkID)
		assert.Equal(t, i, c.Metadata["chunk_index"])
		assert.Equal(t, len(chunks), c.Metadata["total_chunks"])
	}
}

// TestChunkText_ParagraphScenario は段落区切りドキュメントの分割シナリオを検証する
// chunk_size=100トークン(400文字), overlap=10トークン(40文字)
func TestChunkText_ParagraphScenario(t *testing.T) {
	chunker, err := NewChunker(Config{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	text := buildParagraphs(10, 100)
	require.GreaterOrEqual(t, len(text), 1000)

	chunks := chunker.ChunkText(text, nil)
	require.Greater(t, len(chunks), 1, "1000文字超のテキストは複数チャンクに分かれる")

	// 各チャンクは目標サイズの1.5倍（600文字）以下に収まる
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 600)
	}

	// 2番目以降のチャンクは直前チャンクの末尾とオーバーラップを共有する
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		lead := chunks[i].Text
		if len(lead) > 30 {
			lead = lead[:30]
		}
		assert.True(t, strings.HasSuffix(prev, lead),
			"chunk %d の先頭 %q が chunk %d の末尾に含まれていない", i, lead, i-1)
	}
}

// TestChunkText_Coverage は元テキストの内容がチャンク全体でカバーされることを検証する
func TestChunkText_Coverage(t *testing.T) {
	chunker, err := NewChunker(Config{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	paragraphs := make([]string, 8)
	for i := range paragraphs {
		paragraphs[i] = strings.Repeat(fmt.Sprintf("%c", 'a'+i), 120)
	}
	text := strings.Join(paragraphs, "\n\n")

	chunks := chunker.ChunkText(text, nil)
	require.NotEmpty(t, chunks)

	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Text)
		joined.WriteString("\n")
	}
	for i, p := range paragraphs {
		assert.Contains(t, joined.String(), p, "paragraph %d is missing from chunks", i)
	}
}

// TestChunkText_FixedWidthFallback は区切り文字を含まないテキストの固定幅分割を検証する
func TestChunkText_FixedWidthFallback(t *testing.T) {
	chunker, err := NewChunker(Config{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	text := strings.Repeat("x", 2000)
	chunks := chunker.ChunkText(text, nil)
	require.Greater(t, len(chunks), 1)

	// ウィンドウサイズ400文字、前進幅360文字でテキスト末尾までカバーする
	totalWithoutOverlap := 0
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 400)
		if i == 0 {
			totalWithoutOverlap += len(c.Text)
		} else {
			totalWithoutOverlap += len(c.Text) - 40
		}
	}
	assert.Equal(t, 2000, totalWithoutOverlap)
}

func TestChunkText_Deterministic(t *testing.T) {
	chunker, err := NewChunker(Config{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	text := buildParagraphs(6, 150)
	first := chunker.ChunkText(text, map[string]any{"source": "a.txt"})
	second := chunker.ChunkText(text, map[string]any{"source": "a.txt"})

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Metadata, second[i].Metadata)
	}
}

func TestChunkText_DoesNotMutateInputMetadata(t *testing.T) {
	chunker, err := NewChunker(DefaultConfig())
	require.NoError(t, err)

	metadata := map[string]any{"source": "doc.txt", "category": "general"}
	chunker.ChunkText("some text", metadata)

	assert.Equal(t, map[string]any{"source": "doc.txt", "category": "general"}, metadata)
}

func TestChunkDocuments(t *testing.T) {
	chunker, err := NewChunker(DefaultConfig())
	require.NoError(t, err)

	docs := []SourceDocument{
		{Text: "first document", Metadata: map[string]any{"source": "a.txt"}},
		{Text: "", Metadata: map[string]any{"source": "empty.txt"}},
		{Text: "second document", Metadata: map[string]any{"source": "b.txt"}},
	}

	chunks := chunker.ChunkDocuments(docs)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a.txt", chunks[0].Metadata["source"])
	assert.Equal(t, "b.txt", chunks[1].Metadata["source"])
}

// buildParagraphs は1段落あたりparagraphLen文字の段落をcount個、空行区切りで生成する
func buildParagraphs(count, paragraphLen int) string {
	paragraphs := make([]string, count)
	for i := range paragraphs {
		letter := rune('a' + i%26)
		paragraphs[i] = strings.Repeat(string(letter), paragraphLen)
	}
	return strings.Join(paragraphs, "\n\n")
}

package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileLoader_Load_Text(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "plain text content")

	loader := NewFileLoader()
	doc, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", doc.Title)
	assert.Equal(t, "plain text content", doc.Text)
	assert.Equal(t, "txt", doc.FileType)
	assert.Empty(t, doc.Pages)
}

func TestFileLoader_Load_Markdown(t *testing.T) {
	loader := NewFileLoader()

	t.Run("最初のレベル1見出しがタイトルになる", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "guide.md", "preamble\n\n# VPN Setup Guide\n\nContent here.\n")

		doc, err := loader.Load(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "VPN Setup Guide", doc.Title)
		assert.Equal(t, "md", doc.FileType)
	})

	t.Run("見出しがなければファイル名を使う", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "plain.md", "no headings at all\n")

		doc, err := loader.Load(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "plain.md", doc.Title)
	})
}

func TestFileLoader_Load_Unsupported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "image.png", "binary")

	loader := NewFileLoader()
	_, err := loader.Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestFileLoader_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "first")
	writeFile(t, dir, "sub/b.md", "# B Doc\n\nsecond")
	writeFile(t, dir, "ignored.csv", "not,supported")

	loader := NewFileLoader()
	files, err := loader.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, files, 2)
	paths := []string{files[0].Path, files[1].Path}
	assert.Contains(t, paths, filepath.Join(dir, "a.txt"))
	assert.Contains(t, paths, filepath.Join(dir, "sub", "b.md"))
}

func TestFileLoader_LoadDirectory_KbIgnore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".kbignore", "drafts/\n*.tmp.md\n")
	writeFile(t, dir, "keep.md", "# Keep\n\nkept")
	writeFile(t, dir, "note.tmp.md", "# Tmp\n\nexcluded by pattern")
	writeFile(t, dir, "drafts/wip.txt", "excluded by directory")

	loader := NewFileLoader()
	files, err := loader.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "keep.md"), files[0].Path)
}

func TestFileLoader_LoadDirectory_SkipsUnreadablePDF(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.txt", "readable")
	writeFile(t, dir, "broken.pdf", "this is not a real pdf")

	loader := NewFileLoader()
	files, err := loader.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)

	// 壊れたPDFはスキップされ、残りのファイルは読み込まれる
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dir, "good.txt"), files[0].Path)
}

func TestFileLoader_LoadDirectory_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "file.txt", "content")

	loader := NewFileLoader()
	_, err := loader.LoadDirectory(context.Background(), path)
	require.Error(t, err)
}

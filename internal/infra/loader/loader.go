package loader

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jinford/kb-rag/internal/core/ingestion"
)

// ignoreFileName はディレクトリ走査時に除外パターンを読み込むファイル名
const ignoreFileName = ".kbignore"

// supportedExtensions は読み込み対象のファイル拡張子
var supportedExtensions = map[string]string{
	".txt": "txt",
	".md":  "md",
	".pdf": "pdf",
}

// FileLoader はローカルファイルシステムから txt / md / pdf を読み込む
type FileLoader struct {
	logger *slog.Logger
}

// FileLoaderOption は FileLoader のオプション設定
type FileLoaderOption func(*FileLoader)

// WithLoaderLogger は FileLoader にロガーを設定する
func WithLoaderLogger(logger *slog.Logger) FileLoaderOption {
	return func(l *FileLoader) {
		l.logger = logger
	}
}

// NewFileLoader は新しい FileLoader を作成する
func NewFileLoader(opts ...FileLoaderOption) *FileLoader {
	l := &FileLoader{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load は1ファイルを読み込む
// 拡張子が対応外の場合はエラーを返す
func (l *FileLoader) Load(ctx context.Context, path string) (*ingestion.LoadedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fileType, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	switch fileType {
	case "pdf":
		return l.loadPDF(path)
	case "md":
		return l.loadMarkdown(path)
	default:
		return l.loadText(path)
	}
}

// LoadDirectory はディレクトリ配下の対応ファイルを再帰的に読み込む
// ルートに .kbignore がある場合、gitignore形式のパターンに一致するパスを除外する
// 個々のファイルの読み込み失敗はログに記録してスキップする
func (l *FileLoader) LoadDirectory(ctx context.Context, dir string) ([]ingestion.LoadedFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	var matcher *ignore.GitIgnore
	ignorePath := filepath.Join(dir, ignoreFileName)
	if _, err := os.Stat(ignorePath); err == nil {
		matcher, err = ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ignorePath, err)
		}
	}

	var files []ingestion.LoadedFile
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if matcher != nil && rel != "." && matcher.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		if _, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		doc, loadErr := l.Load(ctx, path)
		if loadErr != nil {
			l.logger.Warn("skipping unreadable file",
				"path", path,
				"error", loadErr,
			)
			return nil
		}

		files = append(files, ingestion.LoadedFile{Path: path, Document: doc})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}

	return files, nil
}

// loadText はプレーンテキストファイルを読み込む
func (l *FileLoader) loadText(path string) (*ingestion.LoadedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return &ingestion.LoadedDocument{
		Title:    filepath.Base(path),
		Text:     string(data),
		FileType: "txt",
		Metadata: map[string]any{
			"file_name": filepath.Base(path),
		},
	}, nil
}

// loadMarkdown はMarkdownファイルを読み込む
// 最初のレベル1見出しをタイトルとして使い、なければファイル名を使う
func (l *FileLoader) loadMarkdown(path string) (*ingestion.LoadedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	title := filepath.Base(path)
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if heading, ok := strings.CutPrefix(trimmed, "# "); ok {
			title = strings.TrimSpace(heading)
			break
		}
	}

	return &ingestion.LoadedDocument{
		Title:    title,
		Text:     string(data),
		FileType: "md",
		Metadata: map[string]any{
			"file_name": filepath.Base(path),
		},
	}, nil
}

// loadPDF はPDFファイルをページ単位で読み込む
func (l *FileLoader) loadPDF(path string) (*ingestion.LoadedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	var (
		pages []ingestion.Page
		full  strings.Builder
	)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Warn("skipping unreadable pdf page",
				"path", path,
				"page", i,
				"error", err,
			)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		pages = append(pages, ingestion.Page{Number: i, Text: text})
		if full.Len() > 0 {
			full.WriteString("\n\n")
		}
		full.WriteString(text)
	}

	return &ingestion.LoadedDocument{
		Title:    filepath.Base(path),
		Text:     full.String(),
		FileType: "pdf",
		Pages:    pages,
		Metadata: map[string]any{
			"file_name":  filepath.Base(path),
			"page_count": reader.NumPage(),
		},
	}, nil
}

// インターフェース実装の確認
var _ ingestion.Loader = (*FileLoader)(nil)

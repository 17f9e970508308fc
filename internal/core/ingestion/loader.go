package ingestion

import "context"

// Page はページ概念を持つドキュメント（PDFなど）の1ページを表す
type Page struct {
	Number int // 1始まりのページ番号
	Text   string
}

// LoadedDocument はローダーが読み込んだ1ファイル分の内容を表す
type LoadedDocument struct {
	Title    string         // タイトル（Markdownの見出し、なければファイル名）
	Text     string         // 全文テキスト
	FileType string         // "txt" / "md" / "pdf"
	Pages    []Page         // ページ単位のテキスト（ページ概念がないソースは空）
	Metadata map[string]any // source / file_type / page_count など
}

// LoadedFile はディレクトリ走査で見つかった1ファイルを表す
type LoadedFile struct {
	Path     string
	Document *LoadedDocument
}

// Loader はファイルからドキュメントを読み込むインターフェース
type Loader interface {
	// Load は1ファイルを読み込む
	Load(ctx context.Context, path string) (*LoadedDocument, error)

	// LoadDirectory はディレクトリ配下の対応ファイルを再帰的に読み込む
	// 読み込みに失敗したファイルはスキップされ、結果には含まれない
	LoadDirectory(ctx context.Context, dir string) ([]LoadedFile, error)
}

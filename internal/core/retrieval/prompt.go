package retrieval

import (
	"fmt"
	"strings"
)

// FormatContext は取得済みコンテキストを番号付きのブロック形式に整形する
func FormatContext(contexts []ContextItem) string {
	var b strings.Builder
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("--- Context %d ---\n", i+1))
		b.WriteString(fmt.Sprintf("Source: %s", c.Source))
		if page, ok := c.Page.Get(); ok {
			b.WriteString(fmt.Sprintf(" (page %d)", page))
		}
		if c.Section != "" {
			b.WriteString(fmt.Sprintf(" [%s]", c.Section))
		}
		b.WriteString("\n")
		b.WriteString(c.Text)
	}
	return b.String()
}

// BuildQueryPrompt は質問とコンテキストから回答生成用のユーザープロンプトを組み立てる
func BuildQueryPrompt(question string, contexts []ContextItem) string {
	return fmt.Sprintf(`Answer the question based only on the following context.
If the context does not contain the information needed, say so.

%s

Question: %s`, FormatContext(contexts), question)
}

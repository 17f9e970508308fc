package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

// SearchAction は質問に類似するチャンクを検索して表示する
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("検索クエリを指定してください")
	}

	app, err := NewAppContext(ctx, cmd.String("env"), searchOptions(cmd)...)
	if err != nil {
		return err
	}
	defer app.Close()

	contexts, err := app.Retriever.Search(ctx, query, buildFilter(cmd.String("category")))
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}

	if len(contexts) == 0 {
		fmt.Println("該当するドキュメントが見つかりませんでした")
		return nil
	}

	for i, c := range contexts {
		fmt.Printf("[%d] score=%.4f source=%s", i+1, c.Score, c.Source)
		if page, ok := c.Page.Get(); ok {
			fmt.Printf(" page=%d", page)
		}
		fmt.Println()
		fmt.Println(c.Text)
		fmt.Println()
	}
	return nil
}

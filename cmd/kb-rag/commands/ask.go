package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

// AskAction は質問に対する回答をナレッジベースに基づいて生成して表示する
func AskAction(ctx context.Context, cmd *cli.Command) error {
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("質問を指定してください")
	}

	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	answer, err := app.Retriever.Query(ctx, question, buildFilter(cmd.String("category")))
	if err != nil {
		return fmt.Errorf("回答の取得に失敗: %w", err)
	}

	fmt.Println(answer.Answer)
	fmt.Println()
	fmt.Printf("確信度: %.2f（コンテキスト %d件）\n", answer.Confidence, answer.ContextCount)

	if cmd.Bool("show-sources") && len(answer.Citations) > 0 {
		fmt.Println("出典:")
		for _, citation := range answer.Citations {
			fmt.Printf("  - %s", citation.Source)
			if page, ok := citation.Page.Get(); ok {
				fmt.Printf(" (p.%d)", page)
			}
			if citation.Section != "" {
				fmt.Printf(" [%s]", citation.Section)
			}
			fmt.Println()
		}
	}

	if len(answer.FollowUpQuestions) > 0 {
		fmt.Println("関連する質問:")
		for _, q := range answer.FollowUpQuestions {
			fmt.Printf("  - %s\n", q)
		}
	}

	if answer.ErrorDetail != "" {
		fmt.Printf("警告: 回答生成でエラーが発生しました: %s\n", answer.ErrorDetail)
	}
	return nil
}

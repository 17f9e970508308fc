package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/kb-rag/internal/core/document"
)

// IndexDirAction はディレクトリ配下のドキュメントを登録してインデックスする
func IndexDirAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"), chunkingOptions(cmd)...)
	if err != nil {
		return err
	}
	defer app.Close()

	if cmd.Bool("clear") {
		if err := app.Index.Clear(ctx); err != nil {
			return fmt.Errorf("インデックスのクリアに失敗: %w", err)
		}
		fmt.Printf("コレクション %s をクリアしました\n", app.Index.CollectionName())
	}

	dir := cmd.String("dir")
	category := cmd.String("category")

	stats, err := app.Ingestion.IndexDirectory(ctx, dir, category)
	if err != nil {
		return fmt.Errorf("インデックス処理に失敗: %w", err)
	}

	fmt.Printf("登録: %d件, 成功: %d件, 失敗: %d件, チャンク: %d件\n",
		stats.Registered, stats.Indexed, stats.Failed, stats.Chunks)
	return nil
}

// IndexPendingAction は未処理のドキュメントをインデックスする
func IndexPendingAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"), chunkingOptions(cmd)...)
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.Ingestion.IndexPending(ctx)
	if err != nil {
		return fmt.Errorf("インデックス処理に失敗: %w", err)
	}

	fmt.Printf("成功: %d件, 失敗: %d件, チャンク: %d件\n",
		stats.Indexed, stats.Failed, stats.Chunks)
	return nil
}

// IndexStatusAction はドキュメントとインデックスの状態を表示する
func IndexStatusAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	counts, err := app.Documents.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("ステータス集計に失敗: %w", err)
	}

	fmt.Printf("コレクション: %s (%d次元)\n", app.Index.CollectionName(), app.Index.VectorSize())
	fmt.Printf("ポイント数: %d\n\n", app.Index.Count(ctx))

	for _, status := range []document.Status{
		document.StatusPending,
		document.StatusProcessing,
		document.StatusIndexed,
		document.StatusFailed,
	} {
		fmt.Printf("%-12s %d\n", status, counts[status])
	}
	return nil
}

// IndexClearAction はベクトルインデックスの全ポイントを削除する
func IndexClearAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Index.Clear(ctx); err != nil {
		return fmt.Errorf("インデックスのクリアに失敗: %w", err)
	}

	fmt.Printf("コレクション %s をクリアしました\n", app.Index.CollectionName())
	return nil
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/kb-rag/cmd/kb-rag/commands"
	"github.com/jinford/kb-rag/internal/platform/logger"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := logger.DefaultConfig()
	cfg.Level = logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger.New(cfg)

	app := &cli.Command{
		Name:  "kb-rag",
		Usage: "社内ナレッジベース向け検索・質問応答システム",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "dir",
						Usage: "ディレクトリ配下のドキュメントを登録してインデックス化",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "dir",
								Usage:    "ドキュメントディレクトリ",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "category",
								Usage: "登録するドキュメントのカテゴリ",
							},
							&cli.IntFlag{
								Name:  "chunk-size",
								Usage: "チャンクサイズ（トークン単位、省略時は設定値）",
							},
							&cli.IntFlag{
								Name:  "chunk-overlap",
								Usage: "チャンクオーバーラップ（トークン単位、省略時は設定値）",
							},
							&cli.BoolFlag{
								Name:  "clear",
								Usage: "インデックス前にコレクションをクリアする",
							},
						},
						Action: commands.IndexDirAction,
					},
					{
						Name:  "pending",
						Usage: "未処理のドキュメントをインデックス化",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.IntFlag{
								Name:  "chunk-size",
								Usage: "チャンクサイズ（トークン単位、省略時は設定値）",
							},
							&cli.IntFlag{
								Name:  "chunk-overlap",
								Usage: "チャンクオーバーラップ（トークン単位、省略時は設定値）",
							},
						},
						Action: commands.IndexPendingAction,
					},
					{
						Name:  "status",
						Usage: "ドキュメントとインデックスの状態を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.IndexStatusAction,
					},
					{
						Name:  "clear",
						Usage: "ベクトルインデックスの全ポイントを削除",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.IndexClearAction,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "質問に類似するチャンクを検索",
				ArgsUsage: "<クエリ>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "カテゴリで絞り込み",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "返す最大件数（省略時は設定値）",
					},
					&cli.FloatFlag{
						Name:  "threshold",
						Usage: "最低スコア（負の値で閾値フィルタを無効化、省略時は設定値）",
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:      "ask",
				Usage:     "ナレッジベースに基づいて質問に回答",
				ArgsUsage: "<質問>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "カテゴリで絞り込み",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "回答の出典を表示する",
					},
				},
				Action: commands.AskAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

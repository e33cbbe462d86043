// Command listingwatch はマーケットプレイスの検索を定期的に再実行し、新着掲載を記録する。
//
//	listingwatch serve        APIサーバーとスケジューラを起動する（既定）
//	listingwatch worker       スケジューラのみを起動する
//	listingwatch migrate      データベースマイグレーションを実行する
//	listingwatch create ...   検索を作成して初回チェックを行う
//	listingwatch check <id>   検索を1回チェックする
//	listingwatch list         検索の一覧を表示する
//	listingwatch healthcheck  /health を確認する
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/listingwatch/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("listingwatch exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// Command geotrail はGeoLifeデータセットの取り込みと集計を行う。
//
// サブコマンド:
//
//	serve        集計APIサーバーを起動する（デフォルト）
//	migrate      データベースマイグレーションを実行する
//	reset        管理対象テーブルを空にする
//	ingest       DATASET_DIR のデータセットを取り込む
//	report [path] 全集計クエリを実行してJSONを出力する
//	export [path] トラックポイントをParquetファイルに書き出す
//	healthcheck  /health を確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/geotrail/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "geotrail: %v\n", err)
		os.Exit(1)
	}
}

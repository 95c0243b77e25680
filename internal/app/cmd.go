package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は集計APIサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandReset は管理対象テーブルを空にすることを示す。
	CommandReset Command = "reset"
	// CommandIngest はデータセットを取り込むことを示す。
	CommandIngest Command = "ingest"
	// CommandReport は全集計クエリを実行してJSONで出力することを示す。
	CommandReport Command = "report"
	// CommandExport はトラックポイントをParquetファイルに書き出すことを示す。
	CommandExport Command = "export"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandServe, CommandMigrate, CommandReset, CommandIngest,
		CommandReport, CommandExport, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// commandArg はサブコマンドの後のi番目の引数を返す。無い場合は空文字列。
func commandArg(args []string, i int) string {
	if len(args) > i+1 {
		return args[i+1]
	}
	return ""
}

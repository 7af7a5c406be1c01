package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はコンテンツAPIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は定期再同期ワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandSync はリモートストアから1回だけ再同期する。
	CommandSync Command = "sync"
	// CommandMigrate はPostgreSQLのスキーマを適用する。"migrate down" で1つ戻す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のAPIの /health を確認する。distrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandSync):        CommandSync,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を取り出す。
// 引数が空または未知のコマンドの場合はCommandServeとし、残りの引数は返さない。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	cmd, ok := knownCommands[args[0]]
	if !ok {
		return CommandServe, nil
	}
	return cmd, args[1:]
}

package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"

	// CommandLogin はCLIクライアントとしてログインすることを示す。
	CommandLogin Command = "login"
	// CommandLogout は保存済みのログイン情報を破棄することを示す。
	CommandLogout Command = "logout"
	// CommandWhoami はログイン中の利用者の表示を示す。
	CommandWhoami Command = "whoami"
	// CommandCatalog は蔵書一覧・蔵書管理のクライアント操作を示す。
	CommandCatalog Command = "catalog"
	// CommandBook は蔵書詳細の表示を示す。
	CommandBook Command = "book"
	// CommandBorrow は貸出手続きのクライアント操作を示す。
	CommandBorrow Command = "borrow"
	// CommandLoans は貸出一覧のクライアント操作を示す。
	CommandLoans Command = "loans"
	// CommandReturn は返却処理のクライアント操作を示す。
	CommandReturn Command = "return"
	// CommandUsers は利用者管理のクライアント操作を示す。
	CommandUsers Command = "users"
	// CommandStats はダッシュボード統計のクライアント操作を示す。
	CommandStats Command = "stats"

	// CommandHelp は使い方の表示を示す。未知のサブコマンドもここに倒す。
	CommandHelp Command = "help"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。
// サポート外のコマンドはCommandHelpを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "login":
		return CommandLogin
	case "logout":
		return CommandLogout
	case "whoami":
		return CommandWhoami
	case "catalog":
		return CommandCatalog
	case "book":
		return CommandBook
	case "borrow":
		return CommandBorrow
	case "loans":
		return CommandLoans
	case "return":
		return CommandReturn
	case "users":
		return CommandUsers
	case "stats":
		return CommandStats
	default:
		return CommandHelp
	}
}

// IsClientCommand はAPIサーバーへのクライアントとして動作するコマンドかを返す。
func (c Command) IsClientCommand() bool {
	switch c {
	case CommandLogin, CommandLogout, CommandWhoami, CommandCatalog, CommandBook,
		CommandBorrow, CommandLoans, CommandReturn, CommandUsers, CommandStats:
		return true
	}
	return false
}

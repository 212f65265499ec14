package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hitoshi/toshokan/internal/apiclient"
	"github.com/hitoshi/toshokan/internal/bookmeta"
	"github.com/hitoshi/toshokan/internal/borrow"
	"github.com/hitoshi/toshokan/internal/catalog"
	"github.com/hitoshi/toshokan/internal/config"
	"github.com/hitoshi/toshokan/internal/loanstatus"
	"github.com/hitoshi/toshokan/internal/logger"
	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/policy"
	"github.com/hitoshi/toshokan/internal/session"
)

// dateLayout はCLIでの日付の表示・入力形式。
const dateLayout = "2006-01-02"

// clientEnv はクライアントコマンドの実行に必要な依存をまとめる。
type clientEnv struct {
	cfg   *config.ClientConfig
	api   *apiclient.Client
	store *session.Store
	out   io.Writer
}

// newClientEnv はクライアントコマンドの実行環境を構築する。
// ログはテキスト形式でstderrへ、コマンドの出力はwへ書く。
func newClientEnv(w io.Writer) (*clientEnv, error) {
	cliLogger := logger.SetupCLI(os.Stderr)

	cfg, err := config.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("failed to load client config: %w", err)
	}

	sessionPath := cfg.SessionFile
	if sessionPath == "" {
		sessionPath, err = session.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve session path: %w", err)
		}
	}

	api := apiclient.NewClient(apiclient.Config{
		BaseURL:           cfg.APIURL,
		HTTPClient:        &http.Client{Timeout: cfg.HTTPTimeout},
		RequestsPerSecond: float64(cfg.RateLimit),
		Logger:            cliLogger,
	})

	return &clientEnv{
		cfg:   cfg,
		api:   api,
		store: session.NewStore(sessionPath),
		out:   w,
	}, nil
}

// requireLogin は保存済みのログイン情報を返す。未ログインの場合はエラーを返す。
func (e *clientEnv) requireLogin() (*model.User, error) {
	user := e.store.Load()
	if user == nil {
		return nil, fmt.Errorf("ログインしていません。先に login を実行してください")
	}
	return user, nil
}

// runClient はクライアントコマンドを実行する。
// argsにはサブコマンド名を除いた引数を渡す。
func runClient(w io.Writer, cmd Command, args []string) error {
	env, err := newClientEnv(w)
	if err != nil {
		return err
	}

	ctx := context.Background()

	switch cmd {
	case CommandLogin:
		return env.runLogin(ctx, args)
	case CommandLogout:
		return env.runLogout()
	case CommandWhoami:
		return env.runWhoami()
	case CommandCatalog:
		return env.runCatalog(ctx, args)
	case CommandBook:
		return env.runBook(ctx, args)
	case CommandBorrow:
		return env.runBorrow(ctx, args)
	case CommandLoans:
		return env.runLoans(ctx, args)
	case CommandReturn:
		return env.runReturn(ctx, args)
	case CommandUsers:
		return env.runUsers(ctx, args)
	case CommandStats:
		return env.runStats(ctx)
	default:
		return fmt.Errorf("unknown client command: %s", cmd)
	}
}

// runLogin はログインして資格情報をファイルに保存する。
func (e *clientEnv) runLogin(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("使い方: login <ユーザー名> <パスワード>")
	}

	user, err := e.api.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	if err := e.store.Save(user); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Fprintf(e.out, "ログインしました: %s（%s）\n", user.Username, user.Role)
	return nil
}

// runLogout は保存済みのログイン情報を破棄する。
func (e *clientEnv) runLogout() error {
	if err := e.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	fmt.Fprintln(e.out, "ログアウトしました。")
	return nil
}

// runWhoami はログイン中の利用者を表示する。
func (e *clientEnv) runWhoami() error {
	user := e.store.Load()
	if user == nil {
		fmt.Fprintln(e.out, "ログインしていません。")
		return nil
	}
	fmt.Fprintf(e.out, "%s（%s）\n", user.Username, user.Role)
	return nil
}

// runBook は蔵書の詳細を表示する。
// 閲覧者に可視でない蔵書は存在しないものとして扱う。
func (e *clientEnv) runBook(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("使い方: book <蔵書ID>")
	}

	viewer := e.store.Load()

	book, err := e.api.GetBook(ctx, args[0])
	if err != nil {
		return err
	}
	if !policy.CanViewBook(*book, viewer) {
		return model.NewBookNotFoundError(args[0])
	}

	fmt.Fprintf(e.out, "タイトル: %s\n", book.Title)
	fmt.Fprintf(e.out, "著者: %s\n", book.Author)
	if book.ISBN != "" {
		fmt.Fprintf(e.out, "ISBN: %s\n", book.ISBN)
	}
	if book.Editor != "" {
		fmt.Fprintf(e.out, "出版社: %s\n", book.Editor)
	}
	if book.PublicationDate != "" {
		fmt.Fprintf(e.out, "出版日: %s\n", book.PublicationDate)
	}
	if book.PageCount > 0 {
		fmt.Fprintf(e.out, "ページ数: %d\n", book.PageCount)
	}
	if book.Description != "" {
		fmt.Fprintf(e.out, "内容紹介: %s\n", book.Description)
	}
	if policy.CanSeeStockCounts(viewer) {
		fmt.Fprintf(e.out, "在庫: %d\n", book.Stock)
	} else {
		fmt.Fprintf(e.out, "状態: %s\n", availability(book.Stock))
	}
	return nil
}

// runCatalog は蔵書のサブコマンド（list/add/remove）を実行する。
func (e *clientEnv) runCatalog(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		return e.runCatalogList(ctx, args)
	case "add":
		return e.runCatalogAdd(ctx, args)
	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("使い方: catalog remove <蔵書ID>")
		}
		return e.runCatalogRemove(ctx, args[0])
	default:
		return fmt.Errorf("unknown catalog subcommand: %s", sub)
	}
}

// runCatalogList は検索・分類・ページ指定付きで蔵書一覧を表示する。
// 閲覧者の役割に応じて教員限定資料の表示と在庫数の表示が変わる。
func (e *clientEnv) runCatalogList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("catalog list", flag.ContinueOnError)
	search := fs.String("search", "", "タイトル・著者の部分一致検索語")
	category := fs.String("category", "", "分類IDで絞り込む")
	page := fs.Int("page", 1, "表示するページ番号")
	if err := fs.Parse(args); err != nil {
		return err
	}

	viewer := e.store.Load()

	list, err := e.api.ListBooks(ctx)
	if err != nil {
		return err
	}

	filtered := catalog.Filter(list, catalog.Query{
		SearchTerm: *search,
		CategoryID: *category,
		Viewer:     viewer,
	})
	result := catalog.Page(filtered, *page)

	showStock := policy.CanSeeStockCounts(viewer)

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	if showStock {
		fmt.Fprintln(tw, "ID\tタイトル\t著者\t在庫")
	} else {
		fmt.Fprintln(tw, "ID\tタイトル\t著者\t状態")
	}
	for _, book := range result.Items {
		if showStock {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", book.ID, book.Title, book.Author, book.Stock)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", book.ID, book.Title, book.Author, availability(book.Stock))
		}
	}
	tw.Flush()

	fmt.Fprintf(e.out, "ページ %d/%d（全%d件）\n", *page, result.TotalPages, len(filtered))
	return nil
}

// availability は在庫数を貸出可否の表示に変換する。
func availability(stock int) string {
	if stock > 0 {
		return "貸出可"
	}
	return "貸出中"
}

// runCatalogAdd は蔵書を登録する。司書専用。
// -isbn 指定時はGoogle Books APIから書誌情報を取得して補完する。
// 手入力のフラグはISBN検索の結果より優先される。
func (e *clientEnv) runCatalogAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("catalog add", flag.ContinueOnError)
	isbn := fs.String("isbn", "", "ISBNで書誌情報を検索して補完する")
	title := fs.String("title", "", "タイトル")
	author := fs.String("author", "", "著者")
	category := fs.String("category", "", "分類ID")
	stock := fs.Int("stock", 1, "在庫数")
	access := fs.String("access", string(model.AccessEveryone), "公開区分（Everyone/Teacher）")
	description := fs.String("description", "", "内容紹介")
	coverURL := fs.String("cover", "", "書影URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := e.requireLogin()
	if err != nil {
		return err
	}
	if !policy.CanManageCatalog(user) {
		return fmt.Errorf("蔵書の登録は司書のみ可能です")
	}

	input := apiclient.BookInput{
		Title:       *title,
		Author:      *author,
		CategoryID:  *category,
		Stock:       *stock,
		AccessLevel: *access,
		Description: *description,
		CoverURL:    *coverURL,
		ISBN:        *isbn,
	}

	if *isbn != "" {
		meta, err := bookmeta.NewClient(&http.Client{Timeout: e.cfg.HTTPTimeout}, logger.SetupCLI(os.Stderr)).
			SearchByISBN(ctx, *isbn)
		if err != nil {
			return err
		}
		if input.Title == "" {
			input.Title = meta.Title
		}
		if input.Author == "" {
			input.Author = meta.Author
		}
		if input.CoverURL == "" {
			input.CoverURL = meta.CoverURL
		}
		if input.Description == "" {
			input.Description = meta.Description
		}
		input.Editor = meta.Editor
		input.PageCount = meta.PageCount
		input.PublicationDate = meta.PublicationDate
	}

	book, err := e.api.CreateBook(ctx, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "蔵書を登録しました: %s（ID: %s）\n", book.Title, book.ID)
	return nil
}

// runCatalogRemove は蔵書を削除する。司書専用。
func (e *clientEnv) runCatalogRemove(ctx context.Context, bookID string) error {
	user, err := e.requireLogin()
	if err != nil {
		return err
	}
	if !policy.CanManageCatalog(user) {
		return fmt.Errorf("蔵書の削除は司書のみ可能です")
	}

	if err := e.api.DeleteBook(ctx, bookID); err != nil {
		return err
	}

	fmt.Fprintf(e.out, "蔵書を削除しました: %s\n", bookID)
	return nil
}

// runBorrow は貸出手続きを実行する。
// 数量・返却期限の指定は教員のみ可能。送信前に在庫を再検証する。
func (e *clientEnv) runBorrow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("borrow", flag.ContinueOnError)
	quantity := fs.Int("quantity", 1, "貸出冊数（教員のみ）")
	due := fs.String("due", "", "返却期限 YYYY-MM-DD（教員のみ）")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("使い方: borrow [-quantity N] [-due YYYY-MM-DD] <蔵書ID>")
	}

	user, err := e.requireLogin()
	if err != nil {
		return err
	}

	book, err := e.api.GetBook(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	flow := borrow.NewFlow(e.api)
	if err := flow.Start(book, user); err != nil {
		return err
	}

	switch flow.State() {
	case borrow.StateConfiguringOptions:
		var dueDate *time.Time
		if *due != "" {
			d, err := time.Parse(dateLayout, *due)
			if err != nil {
				return fmt.Errorf("返却期限の形式が不正です（YYYY-MM-DD）: %w", err)
			}
			dueDate = &d
		}
		if err := flow.Configure(*quantity, dueDate); err != nil {
			return err
		}
	default:
		if *quantity != 1 || *due != "" {
			return fmt.Errorf("数量・返却期限の指定は教員のみ可能です")
		}
	}

	result, err := flow.Submit(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "「%s」を%d冊借りました。返却期限: %s（残り在庫: %d）\n",
		book.Title, result.Quantity, result.DueDate.Format(dateLayout), result.RemainingStock)
	return nil
}

// runLoans は貸出一覧を表示する。
// -all 指定時は全利用者の貸出中一覧を表示する（司書のみ）。
func (e *clientEnv) runLoans(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("loans", flag.ContinueOnError)
	all := fs.Bool("all", false, "全利用者の貸出中一覧を表示する（司書のみ）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := e.requireLogin()
	if err != nil {
		return err
	}

	var loans []model.LoanWithBook
	if *all {
		if !policy.CanViewAllLoans(user) {
			return fmt.Errorf("全利用者の貸出一覧は司書のみ閲覧できます")
		}
		loans, err = e.api.ActiveLoans(ctx)
	} else {
		loans, err = e.api.MyLoans(ctx, user.ID)
	}
	if err != nil {
		return err
	}

	if len(loans) == 0 {
		fmt.Fprintln(e.out, "貸出中の資料はありません。")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	if *all {
		fmt.Fprintln(tw, "貸出ID\tタイトル\t利用者\t貸出日\t期限")
	} else {
		fmt.Fprintln(tw, "貸出ID\tタイトル\t貸出日\t期限")
	}
	for _, loan := range loans {
		if *all {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				loan.ID, loan.BookTitle, loan.Username,
				loan.LoanDate.Format(dateLayout), dueLabel(loan.Loan, now))
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				loan.ID, loan.BookTitle,
				loan.LoanDate.Format(dateLayout), dueLabel(loan.Loan, now))
		}
	}
	tw.Flush()

	overdue := 0
	for _, loan := range loans {
		if loanstatus.IsOverdue(loan.Loan, now) {
			overdue++
		}
	}
	if overdue > 0 {
		fmt.Fprintf(e.out, "延滞中: %d件\n", overdue)
	}
	return nil
}

// dueLabel は貸出の返却期限の表示文字列を返す。
// 延滞・期限間近を強調し、返却済みと期限なしはそのまま示す。
func dueLabel(loan model.Loan, now time.Time) string {
	if loan.Status == model.LoanStatusReturned {
		return "返却済み"
	}
	if loan.DueDate == nil {
		return "期限なし"
	}
	if loanstatus.IsOverdue(loan, now) {
		return fmt.Sprintf("%s（延滞）", loan.DueDate.Format(dateLayout))
	}
	if loanstatus.IsUrgent(loan, now) {
		return fmt.Sprintf("%s（あと%d日）", loan.DueDate.Format(dateLayout), loanstatus.DaysUntilDue(*loan.DueDate, now))
	}
	return loan.DueDate.Format(dateLayout)
}

// runReturn は返却処理を実行する。司書専用。
func (e *clientEnv) runReturn(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("使い方: return <貸出ID>")
	}

	user, err := e.requireLogin()
	if err != nil {
		return err
	}
	if !policy.CanProcessReturns(user) {
		return fmt.Errorf("返却処理は司書のみ可能です")
	}

	if err := e.api.ReturnLoan(ctx, args[0]); err != nil {
		return err
	}

	fmt.Fprintf(e.out, "返却処理が完了しました: %s\n", args[0])
	return nil
}

// runUsers は利用者管理のサブコマンド（list/add/remove）を実行する。司書専用。
func (e *clientEnv) runUsers(ctx context.Context, args []string) error {
	user, err := e.requireLogin()
	if err != nil {
		return err
	}
	if !policy.CanManageUsers(user) {
		return fmt.Errorf("利用者管理は司書のみ可能です")
	}

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		users, err := e.api.ListUsers(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tユーザー名\t役割")
		for _, u := range users {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Username, u.Role)
		}
		return tw.Flush()

	case "add":
		fs := flag.NewFlagSet("users add", flag.ContinueOnError)
		username := fs.String("username", "", "ユーザー名")
		password := fs.String("password", "", "パスワード")
		roleName := fs.String("role", string(model.RoleStudent), "役割（Student/Teacher/Librarian）")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *username == "" || *password == "" {
			return fmt.Errorf("使い方: users add -username <名前> -password <パスワード> [-role <役割>]")
		}

		role, ok := model.ParseRole(*roleName)
		if !ok {
			return fmt.Errorf("不正な役割です: %s", *roleName)
		}

		created, err := e.api.CreateUser(ctx, *username, *password, role)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "利用者を登録しました: %s（ID: %s）\n", created.Username, created.ID)
		return nil

	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("使い方: users remove <利用者ID>")
		}
		if err := e.api.DeleteUser(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "利用者を削除しました: %s\n", args[0])
		return nil

	default:
		return fmt.Errorf("unknown users subcommand: %s", sub)
	}
}

// runStats はダッシュボード統計を表示する。司書専用。
func (e *clientEnv) runStats(ctx context.Context) error {
	user, err := e.requireLogin()
	if err != nil {
		return err
	}
	if !policy.CanManageUsers(user) {
		return fmt.Errorf("ダッシュボード統計は司書のみ閲覧できます")
	}

	stats, err := e.api.GetDashboardStats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "蔵書数: %d\n", stats.TotalBooks)
	fmt.Fprintf(e.out, "利用者数: %d\n", stats.TotalUsers)
	fmt.Fprintf(e.out, "貸出中: %d（うち延滞 %d）\n", stats.ActiveLoans, stats.OverdueLoans)

	if len(stats.PopularBooks) > 0 {
		fmt.Fprintln(e.out, "人気の蔵書:")
		for i, pb := range stats.PopularBooks {
			fmt.Fprintf(e.out, "  %d. %s（%d回）\n", i+1, pb.Title, pb.LoanCount)
		}
	}

	if len(stats.LoansByRole) > 0 {
		fmt.Fprintln(e.out, "役割別の貸出数:")
		for _, role := range model.Roles {
			if count, ok := stats.LoansByRole[string(role)]; ok {
				fmt.Fprintf(e.out, "  %s: %d\n", role, count)
			}
		}
	}
	return nil
}

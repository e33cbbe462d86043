package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/hitoshi/listingwatch/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はスケジューラのみを動かすワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandCreate は検索を作成して初回チェックを行う。
	CommandCreate Command = "create"
	// CommandCheck は検索を1回チェックする。
	CommandCheck Command = "check"
	// CommandList は検索の一覧を表示する。
	CommandList Command = "list"
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

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "create":
		return CommandCreate
	case "check":
		return CommandCheck
	case "list":
		return CommandList
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

var (
	errSearchIDRequired = errors.New("search id is required (or use --all)")
	errSearchIDWithAll  = errors.New("search id and --all are mutually exclusive")
)

// createOptions は create サブコマンドの引数。
type createOptions struct {
	Spec  model.SearchSpec
	Pages int
}

// checkOptions は check サブコマンドの引数。
type checkOptions struct {
	SearchID string
	All      bool
}

// listOptions は list サブコマンドの引数。
type listOptions struct {
	All   bool
	Items string
}

// parseCreateFlags は create サブコマンドのフラグを解析する。
// 価格は指定された場合のみ設定する。検索条件の検証はTrackerで行う。
func parseCreateFlags(args []string) (*createOptions, error) {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	name := fs.StringP("name", "n", "", "表示名（省略時はクエリ）")
	query := fs.StringP("query", "q", "", "検索クエリ")
	location := fs.StringP("location", "l", "", "地域スラッグ")
	priceMin := fs.Int("price-min", 0, "最低価格")
	priceMax := fs.Int("price-max", 0, "最高価格")
	delivery := fs.Bool("delivery", false, "配送可能な掲載に限定する")
	fitting := fs.Bool("fitting", false, "試着可能な掲載に限定する")
	pages := fs.IntP("pages", "p", 0, "初回に取得するページ数（省略時は BACKFILL_MAX_PAGES）")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	opts := &createOptions{
		Spec: model.SearchSpec{
			Name:             *name,
			Query:            *query,
			Location:         *location,
			DeliveryRequired: *delivery,
			FittingRequired:  *fitting,
		},
		Pages: *pages,
	}
	if fs.Changed("price-min") {
		opts.Spec.PriceMin = priceMin
	}
	if fs.Changed("price-max") {
		opts.Spec.PriceMax = priceMax
	}
	// --query を省略した場合は残りの位置引数をクエリとして扱う
	if opts.Spec.Query == "" && fs.NArg() > 0 {
		opts.Spec.Query = strings.Join(fs.Args(), " ")
	}
	return opts, nil
}

// parseCheckFlags は check サブコマンドの引数を解析する。
func parseCheckFlags(args []string) (*checkOptions, error) {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	all := fs.BoolP("all", "a", false, "アクティブな検索をすべてチェックする")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}

	opts := &checkOptions{All: *all}
	if fs.NArg() > 0 {
		opts.SearchID = fs.Arg(0)
	}

	switch {
	case opts.All && opts.SearchID != "":
		return nil, errSearchIDWithAll
	case !opts.All && opts.SearchID == "":
		return nil, errSearchIDRequired
	}
	return opts, nil
}

// parseListFlags は list サブコマンドの引数を解析する。
func parseListFlags(args []string) (*listOptions, error) {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	all := fs.BoolP("all", "a", false, "非アクティブな検索も表示する")
	items := fs.String("items", "", "指定した検索の掲載を表示する")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return &listOptions{All: *all, Items: *items}, nil
}

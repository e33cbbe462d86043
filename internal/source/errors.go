package source

import "errors"

// FailureKind はフェッチ失敗の分類を表す。
type FailureKind int

const (
	// KindBlocked は自動アクセス検知によるブロック。このフェッチ内では再試行しない。
	KindBlocked FailureKind = iota + 1
	// KindTimeout は待機上限までに結果もシグナルも現れなかったことを示す。次回のtickで再試行される。
	KindTimeout
	// KindExtractionEmpty はページは読み込めたが有効な掲載が0件だったことを示す。エラーではなく「結果なし」。
	KindExtractionEmpty
	// KindUnavailable はブラウザの起動やページ生成に失敗したことを示す。スケジューリング上はTimeoutと同じ扱い。
	KindUnavailable
)

// String はログ出力用の文字列表現を返す。
func (k FailureKind) String() string {
	switch k {
	case KindBlocked:
		return "blocked"
	case KindTimeout:
		return "timeout"
	case KindExtractionEmpty:
		return "extraction_empty"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// 分類判定用のセンチネル。errors.Is(err, ErrBlocked) のように使う。
var (
	ErrBlocked         = errors.New("blocked by source")
	ErrTimeout         = errors.New("timed out waiting for results")
	ErrExtractionEmpty = errors.New("no extractable listings")
	ErrUnavailable     = errors.New("browser unavailable")
)

// FetchError はListingSource.Fetchの失敗を表す。
type FetchError struct {
	Kind   FailureKind
	Reason string // 検出したシグナルなど、人が読むための補足
	Err    error  // 下位のエラー（存在する場合）
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は下位のエラーを返す。
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is は分類ごとのセンチネルとの比較を可能にする。
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrBlocked:
		return e.Kind == KindBlocked
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrExtractionEmpty:
		return e.Kind == KindExtractionEmpty
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

// KindOf はエラーの分類を返す。FetchErrorでない場合は0を返す。
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

func blocked(reason string) *FetchError {
	return &FetchError{Kind: KindBlocked, Reason: reason}
}

func timeout(reason string, err error) *FetchError {
	return &FetchError{Kind: KindTimeout, Reason: reason, Err: err}
}

func unavailable(op string, err error) *FetchError {
	return &FetchError{Kind: KindUnavailable, Reason: op, Err: err}
}

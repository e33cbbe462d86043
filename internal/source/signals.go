package source

// resultSelector は検索結果の掲載コンテナ。
const resultSelector = `[data-marker="item"]`

// challengeSelectors は自動アクセス判定のチャレンジ（キャプチャ）を示す要素。
// 要素が存在するだけでは不十分で、表示されている場合のみシグナルとみなす。
var challengeSelectors = []string{
	`iframe[src*="hcaptcha.com"]`,
	`iframe[src*="google.com/recaptcha"]`,
	`div[class*="captcha-container"]`,
	`div[data-testid="captcha"]`,
}

// blockPhrases は明示的なアクセス拒否を示す本文中の文言。検出時は即座にブロック扱いとなる。
var blockPhrases = []string{
	"Доступ ограничен",
	"Подозрительная активность",
	"Системы безопасности",
	"Please confirm you are human",
}

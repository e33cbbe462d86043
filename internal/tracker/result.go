package tracker

import (
	"time"

	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/source"
)

// Outcome は1回のチェックの結果分類。
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeEmpty       Outcome = "empty"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeError       Outcome = "error"
)

// CheckResult は1回のチェックの結果。
type CheckResult struct {
	SearchID   string
	Outcome    Outcome
	NewItems   []*model.Item // 今回新規に保存された掲載のみ
	Fetched    int
	Duplicates int
	Duration   time.Duration
	Err        error
}

func outcomeOf(err error) Outcome {
	switch source.KindOf(err) {
	case source.KindBlocked:
		return OutcomeBlocked
	case source.KindTimeout:
		return OutcomeTimeout
	case source.KindExtractionEmpty:
		return OutcomeEmpty
	case source.KindUnavailable:
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}

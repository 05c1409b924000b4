package rating

import (
	"fmt"
	"math"
	"time"
)

// Elo parameters for rated matches.
const (
	KFactor         = 32
	ReferenceRating = 400
	InitialRating   = 1500
	HistoryCap      = 10
)

// Report is a player's self-declared outcome.
type Report string

const (
	ReportWin    Report = "win"
	ReportLose   Report = "lose"
	ReportCancel Report = "cancel"
)

// Valid reports whether r is one of the three accepted values.
func (r Report) Valid() bool {
	return r == ReportWin || r == ReportLose || r == ReportCancel
}

// Outcome is the resolution category of a match.
type Outcome string

const (
	OutcomeConsistent Outcome = "consistent"
	OutcomeCancel     Outcome = "cancel"
	OutcomeDisputed   Outcome = "disputed"
)

// Classify decides the resolution category from the two reports. It is a pure
// function: the same pair of reports always yields the same category.
func Classify(r1, r2 Report) Outcome {
	if r1 == ReportCancel && r2 == ReportCancel {
		return OutcomeCancel
	}
	if (r1 == ReportWin && r2 == ReportLose) || (r1 == ReportLose && r2 == ReportWin) {
		return OutcomeConsistent
	}
	return OutcomeDisputed
}

// Expected is the Elo expected score of a player rated `rate` against an
// opponent rated `opponent`.
func Expected(rate, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-rate)/ReferenceRating))
}

// WinnerDelta is the winner's rating gain. The loser's change is the exact
// negation, keeping consistent matches zero-sum.
func WinnerDelta(winnerRate, loserRate int) int {
	return int(math.Round(KFactor * (1.0 - Expected(winnerRate, loserRate))))
}

// Prepend adds an entry at the front of a history, newest first, capped.
func Prepend(history []string, entry string) []string {
	out := append([]string{entry}, history...)
	if len(out) > HistoryCap {
		out = out[:HistoryCap]
	}
	return out
}

// History entry helpers. Entries are human-readable and carry the rate
// transition for rated results.

func WinEntry(t time.Time, opponent string, oldRate, newRate int) string {
	return fmt.Sprintf("%s vs %s: 勝利 (%d→%d)", stamp(t), opponent, oldRate, newRate)
}

func LoseEntry(t time.Time, opponent string, oldRate, newRate int) string {
	return fmt.Sprintf("%s vs %s: 敗北 (%d→%d)", stamp(t), opponent, oldRate, newRate)
}

func CancelEntry(t time.Time, opponent string) string {
	return fmt.Sprintf("%s vs %s: 対戦中止", stamp(t), opponent)
}

func DisputedEntry(t time.Time, opponent string) string {
	return fmt.Sprintf("%s vs %s: 結果不一致", stamp(t), opponent)
}

func stamp(t time.Time) string {
	return t.Format("2006/01/02 15:04")
}

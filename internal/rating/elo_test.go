package rating

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClassifyCategories(t *testing.T) {
	cases := []struct {
		r1, r2 Report
		want   Outcome
	}{
		{ReportWin, ReportLose, OutcomeConsistent},
		{ReportLose, ReportWin, OutcomeConsistent},
		{ReportCancel, ReportCancel, OutcomeCancel},
		{ReportWin, ReportWin, OutcomeDisputed},
		{ReportLose, ReportLose, OutcomeDisputed},
		{ReportWin, ReportCancel, OutcomeDisputed},
		{ReportCancel, ReportLose, OutcomeDisputed},
	}
	for _, tc := range cases {
		if got := Classify(tc.r1, tc.r2); got != tc.want {
			t.Errorf("Classify(%s, %s) = %s, want %s", tc.r1, tc.r2, got, tc.want)
		}
	}
}

func TestClassifyIsSymmetricForDisputes(t *testing.T) {
	reports := []Report{ReportWin, ReportLose, ReportCancel}
	for _, a := range reports {
		for _, b := range reports {
			got, mirrored := Classify(a, b), Classify(b, a)
			if got != mirrored {
				t.Errorf("Classify(%s, %s)=%s but Classify(%s, %s)=%s", a, b, got, b, a, mirrored)
			}
		}
	}
}

func TestEqualRatingsGiveSixteen(t *testing.T) {
	if d := WinnerDelta(1500, 1500); d != 16 {
		t.Errorf("WinnerDelta(1500, 1500) = %d, want 16", d)
	}
}

func TestFavoriteGainsLessThanUnderdog(t *testing.T) {
	favorite := WinnerDelta(1600, 1400)
	underdog := WinnerDelta(1400, 1600)

	if favorite != 8 {
		t.Errorf("favorite win delta = %d, want 8", favorite)
	}
	if underdog != 24 {
		t.Errorf("underdog win delta = %d, want 24", underdog)
	}
	if favorite >= underdog {
		t.Errorf("favorite (%d) should gain less than underdog (%d)", favorite, underdog)
	}
}

func TestExpectedScoresSumToOne(t *testing.T) {
	pairs := [][2]int{{1500, 1500}, {1600, 1400}, {1200, 1900}, {1500, 1516}}
	for _, p := range pairs {
		sum := Expected(p[0], p[1]) + Expected(p[1], p[0])
		if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Expected(%d,%d)+Expected(%d,%d) = %f, want 1", p[0], p[1], p[1], p[0], sum)
		}
	}
}

func TestPrependKeepsNewestFirstAndCaps(t *testing.T) {
	var history []string
	for i := 1; i <= 12; i++ {
		history = Prepend(history, fmt.Sprintf("entry %d", i))
	}

	if len(history) != HistoryCap {
		t.Fatalf("history length = %d, want %d", len(history), HistoryCap)
	}
	if history[0] != "entry 12" {
		t.Errorf("newest entry = %q, want %q", history[0], "entry 12")
	}
	if history[HistoryCap-1] != "entry 3" {
		t.Errorf("oldest kept entry = %q, want %q", history[HistoryCap-1], "entry 3")
	}
}

func TestPrependDoesNotMutateInput(t *testing.T) {
	orig := []string{"a", "b"}
	Prepend(orig, "c")
	if orig[0] != "a" || orig[1] != "b" {
		t.Errorf("input history mutated: %v", orig)
	}
}

func TestHistoryEntryFormats(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	win := WinEntry(at, "bob", 1500, 1516)
	if !strings.Contains(win, "勝利") || !strings.Contains(win, "1500→1516") || !strings.Contains(win, "bob") {
		t.Errorf("win entry missing pieces: %q", win)
	}
	lose := LoseEntry(at, "alice", 1500, 1484)
	if !strings.Contains(lose, "敗北") || !strings.Contains(lose, "1500→1484") {
		t.Errorf("lose entry missing pieces: %q", lose)
	}
	if cancel := CancelEntry(at, "bob"); !strings.Contains(cancel, "対戦中止") {
		t.Errorf("cancel entry missing marker: %q", cancel)
	}
	if disputed := DisputedEntry(at, "bob"); !strings.Contains(disputed, "結果不一致") {
		t.Errorf("disputed entry missing marker: %q", disputed)
	}
	if !strings.HasPrefix(win, "2025/03/14 09:30") {
		t.Errorf("entry not timestamped as expected: %q", win)
	}
}

func TestReportValid(t *testing.T) {
	for _, r := range []Report{ReportWin, ReportLose, ReportCancel} {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	for _, r := range []Report{"", "draw", "WIN"} {
		if r.Valid() {
			t.Errorf("%q should be invalid", r)
		}
	}
}

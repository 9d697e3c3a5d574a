package provider

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/contentmod/contentmod/automod"
)

// Names of the signals computed by the local rule engine. These are also the result category names.
const (
	SignalBlocklist     = "blocklist"
	SignalExcessiveCaps = "excessive_caps"
	SignalSpamPatterns  = "spam_patterns"
)

// Rule-based scoring with no network access. Deterministic for a given text, blocklist and threshold.
type LocalRules struct {
	Blocklist   []string
	Sensitivity float64
}

var _ automod.Provider = (*LocalRules)(nil)

// Parses a comma-separated word list: entries are trimmed and lower-cased, and empty entries dropped.
func ParseBlocklist(raw string) []string {
	var out []string
	for _, word := range strings.Split(raw, ",") {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			out = append(out, word)
		}
	}
	return out
}

func NewLocalRules(blocklist string, sensitivity float64) *LocalRules {
	return &LocalRules{
		Blocklist:   ParseBlocklist(blocklist),
		Sensitivity: sensitivity,
	}
}

func (lr *LocalRules) Name() string {
	return automod.ProviderLocal
}

func (lr *LocalRules) Moderate(ctx context.Context, text string) (*automod.Result, error) {
	return lr.Score(text), nil
}

func (lr *LocalRules) Score(text string) *automod.Result {
	blocked := lr.BlocklistMatches(text)
	caps := ExcessiveCaps(text)
	spam := RepeatedChars(text)

	// weights in tenths, so that sums are exact
	points := 0
	var signals []string
	if len(blocked) > 0 {
		points += 6
		signals = append(signals, SignalBlocklist)
	}
	if caps {
		points += 2
		signals = append(signals, SignalExcessiveCaps)
	}
	if spam {
		points += 2
		signals = append(signals, SignalSpamPatterns)
	}
	score := clampScore(float64(points) / 10.0)
	for _, sig := range signals {
		localRuleHits.WithLabelValues(sig).Inc()
	}

	scores := map[string]float64{
		SignalBlocklist:     0.0,
		SignalExcessiveCaps: 0.0,
		SignalSpamPatterns:  0.0,
	}
	if len(blocked) > 0 {
		scores[SignalBlocklist] = 0.8
	}
	if caps {
		scores[SignalExcessiveCaps] = 0.4
	}
	if spam {
		scores[SignalSpamPatterns] = 0.3
	}

	return &automod.Result{
		Flagged: score >= lr.Sensitivity,
		Score:   score,
		Categories: map[string]bool{
			SignalBlocklist:     len(blocked) > 0,
			SignalExcessiveCaps: caps,
			SignalSpamPatterns:  spam,
		},
		CategoryScores: scores,
		Provider:       automod.ProviderLocal,
		Reason:         strings.Join(signals, ", "),
	}
}

// Returns the blocklist entries which occur in text, case-insensitively.
func (lr *LocalRules) BlocklistMatches(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, word := range lr.Blocklist {
		if strings.Contains(lower, word) {
			out = append(out, word)
		}
	}
	return out
}

// True if text is longer than 10 characters and more than 70% of characters are upper case letters.
func ExcessiveCaps(text string) bool {
	length := utf8.RuneCountInString(text)
	if length <= 10 {
		return false
	}
	upper := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper)/float64(length) > 0.7
}

// True if any single character (other than newline) repeats five or more times in a row.
func RepeatedChars(text string) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && r != '\n' {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= 5 && r != '\n' {
			return true
		}
	}
	return false
}

package policy

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	amountRe = regexp.MustCompile(`(\d[\d,.]*)\s*(k|K)?`)
	spanRe   = regexp.MustCompile(`(\d+)\s*(day|days|d[ií]as?|week|weeks|semanas?|month|months|mes|meses)`)
)

// ParseBudgetUSD extracts a dollar amount from free-form budget text
// such as "$10k", "10,000 USD" or "entre 5000 y 8000". The first
// number found wins. Returns false when no amount can be read.
func ParseBudgetUSD(text string) (int, bool) {
	m := amountRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	raw := strings.ReplaceAll(m[1], ",", "")
	// "10.000" is a thousands separator, "10.5" is a decimal
	if i := strings.Index(raw, "."); i >= 0 {
		if len(raw)-i-1 == 3 {
			raw = strings.ReplaceAll(raw, ".", "")
		} else {
			raw = raw[:i]
		}
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if m[2] != "" {
		n *= 1000
	}
	return n, true
}

// ParseTimelineDays extracts a horizon in days from free-form timeline
// text such as "in 2 weeks", "3 meses" or "asap". Returns false when
// no horizon can be read.
func ParseTimelineDays(text string) (int, bool) {
	lower := strings.ToLower(text)

	for _, kw := range []string{"asap", "immediately", "right away", "ya mismo", "de inmediato"} {
		if strings.Contains(lower, kw) {
			return 7, true
		}
	}

	m := spanRe.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}

	switch {
	case strings.HasPrefix(m[2], "d"):
		return n, true
	case strings.HasPrefix(m[2], "w"), strings.HasPrefix(m[2], "s"):
		return n * 7, true
	default:
		return n * 30, true
	}
}

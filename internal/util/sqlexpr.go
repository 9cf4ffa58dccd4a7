package util

import "strings"

// NowPart is the part of the current instant a SQL default expression yields.
type NowPart int

const (
	NowTimestamp NowPart = iota + 1
	NowDate
	NowTime
)

func (p NowPart) String() string {
	switch p {
	case NowTimestamp:
		return "timestamp"
	case NowDate:
		return "date"
	case NowTime:
		return "time"
	}
	return "unknown"
}

var nowExpressions = map[string]NowPart{
	"CURRENT_TIMESTAMP": NowTimestamp,
	"NOW()":             NowTimestamp,
	"UTC_TIMESTAMP()":   NowTimestamp,
	"LOCALTIMESTAMP":    NowTimestamp,
	"CURRENT_DATE":      NowDate,
	"CURDATE()":         NowDate,
	"CURRENT_TIME":      NowTime,
	"CURTIME()":         NowTime,
}

// SQLNow reports whether raw is a column default that evaluates to the
// current instant, e.g. CURRENT_TIMESTAMP or now(), and which part of it.
// A precision suffix such as CURRENT_TIMESTAMP(6) is accepted.
func SQLNow(raw string) (NowPart, bool) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if p, ok := nowExpressions[token]; ok {
		return p, true
	}
	if base, rest, ok := strings.Cut(token, "("); ok && strings.HasSuffix(rest, ")") {
		if p, ok := nowExpressions[base]; ok && p != NowDate && isDigits(strings.TrimSuffix(rest, ")")) {
			return p, true
		}
	}
	return 0, false
}

// Fits reports whether a default of this part can populate a column holding
// only date, only time, or both.
func (p NowPart) Fits(date, clock bool) bool {
	switch p {
	case NowDate:
		return date
	case NowTime:
		return clock && !date
	}
	return date || clock
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

package communication

import "fmt"

// Severity is the three-tier label attached to manager aggregates
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityGood     Severity = "good"
)

// Thresholds, inclusive at the lower edge
const (
	InterruptionCriticalRate = 50.0
	InterruptionWarningRate  = 30.0
	TalkListenCriticalRatio  = 2.5
	TalkListenWarningRatio   = 1.5
)

// Rank orders severities for sorting: critical first
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// AtLeast reports whether s is as bad as or worse than other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() <= other.Rank()
}

// ParseSeverity validates a severity name
func ParseSeverity(value string) (Severity, error) {
	switch Severity(value) {
	case SeverityCritical, SeverityWarning, SeverityGood:
		return Severity(value), nil
	}
	return "", fmt.Errorf("unknown severity %q", value)
}

// ClassifyInterruptionRate labels a mean interruption rate (percent)
func ClassifyInterruptionRate(rate float64) Severity {
	switch {
	case rate >= InterruptionCriticalRate:
		return SeverityCritical
	case rate >= InterruptionWarningRate:
		return SeverityWarning
	default:
		return SeverityGood
	}
}

// ClassifyTalkListenRatio labels a mean talk-to-listen ratio
func ClassifyTalkListenRatio(ratio float64) Severity {
	switch {
	case ratio >= TalkListenCriticalRatio:
		return SeverityCritical
	case ratio >= TalkListenWarningRatio:
		return SeverityWarning
	default:
		return SeverityGood
	}
}

// Worse returns the higher-ranked of two severities
func Worse(a, b Severity) Severity {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

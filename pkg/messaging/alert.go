package messaging

import (
	"time"

	"commetrics-server/pkg/communication"

	"github.com/google/uuid"
)

// Alert is published for every manager whose digest severity crosses the
// configured threshold
type Alert struct {
	ID                string                 `json:"id"`
	Manager           string                 `json:"manager"`
	Department        string                 `json:"department"`
	Severity          communication.Severity `json:"severity"`
	InterruptionRate  float64                `json:"interruption_rate"`
	TalkToListenRatio float64                `json:"talk_to_listen_ratio"`
	CallsCount        int                    `json:"calls_count"`
	PeriodDays        int                    `json:"period_days"`
	GeneratedAt       time.Time              `json:"generated_at"`
}

// NewAlert builds an alert from one summary row
func NewAlert(m communication.SummaryManager, periodDays int, generatedAt time.Time) Alert {
	return Alert{
		ID:                uuid.NewString(),
		Manager:           m.Name,
		Department:        m.Department,
		Severity:          m.Severity,
		InterruptionRate:  m.InterruptionRate,
		TalkToListenRatio: m.TalkToListenRatio,
		CallsCount:        m.CallsCount,
		PeriodDays:        periodDays,
		GeneratedAt:       generatedAt.UTC(),
	}
}

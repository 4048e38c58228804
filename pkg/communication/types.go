package communication

// MinAudioDurationSec is the shortest call that is analysed at all
const MinAudioDurationSec = 30.0

// MinSpeakersCount is the declared speaker count a record needs to be analysed
const MinSpeakersCount = 2

// Report types accepted by the engine and the HTTP API
const (
	TypeInterruptions = "interruptions"
	TypeTalkListen    = "talk_listen"
	TypeSummary       = "summary"
)

// ValidType reports whether t names a known report
func ValidType(t string) bool {
	switch t {
	case TypeInterruptions, TypeTalkListen, TypeSummary:
		return true
	}
	return false
}

// CallRecord is one call row as delivered by the data source
type CallRecord struct {
	ManagerName      string  `json:"manager_name"`
	Department       string  `json:"department"`
	CallDate         string  `json:"call_date"` // YYYY-MM-DD
	DiarizationJSON  *string `json:"diarization_json"`
	AudioDurationSec float64 `json:"audio_duration_sec"`
}

// InterruptionManager is one row of the interruptions report
type InterruptionManager struct {
	Name               string   `json:"name"`
	Department         string   `json:"department"`
	CallsCount         int      `json:"calls_count"`
	InterruptionRate   float64  `json:"interruption_rate"`
	TotalInterruptions int      `json:"total_interruptions"`
	TotalTransitions   int      `json:"total_transitions"`
	Severity           Severity `json:"severity"`
}

// InterruptionTimelinePoint is the per-day mean interruption rate
type InterruptionTimelinePoint struct {
	Date                string  `json:"date"`
	AvgInterruptionRate float64 `json:"avg_interruption_rate"`
	CallsCount          int     `json:"calls_count"`
}

// InterruptionReport is the response body for type=interruptions
type InterruptionReport struct {
	Managers []InterruptionManager       `json:"managers"`
	Timeline []InterruptionTimelinePoint `json:"timeline"`
}

// TalkListenManager is one row of the talk/listen report
type TalkListenManager struct {
	Name              string   `json:"name"`
	Department        string   `json:"department"`
	CallsCount        int      `json:"calls_count"`
	TalkToListenRatio float64  `json:"talk_to_listen_ratio"`
	ManagerDominance  float64  `json:"manager_dominance"`
	Severity          Severity `json:"severity"`
}

// TalkListenTimelinePoint is the per-day mean talk/listen split
type TalkListenTimelinePoint struct {
	Date                 string  `json:"date"`
	AvgTalkToListenRatio float64 `json:"avg_talk_to_listen_ratio"`
	AvgManagerDominance  float64 `json:"avg_manager_dominance"`
	CallsCount           int     `json:"calls_count"`
}

// TalkListenReport is the response body for type=talk_listen
type TalkListenReport struct {
	Managers []TalkListenManager       `json:"managers"`
	Timeline []TalkListenTimelinePoint `json:"timeline"`
}

// SummaryManager is one row of the combined report
type SummaryManager struct {
	Name              string   `json:"name"`
	Department        string   `json:"department"`
	CallsCount        int      `json:"calls_count"`
	InterruptionRate  float64  `json:"interruption_rate"`
	TalkToListenRatio float64  `json:"talk_to_listen_ratio"`
	Severity          Severity `json:"severity"`
}

// SummaryReport is the response body for type=summary
type SummaryReport struct {
	Managers   []SummaryManager `json:"managers"`
	PeriodDays int              `json:"period_days"`
}

package communication

import (
	"math"

	"commetrics-server/pkg/diarization"
)

// InterruptionThreshold is the longest client-to-manager gap, in seconds, that
// still counts as the manager cutting in.
const InterruptionThreshold = 0.5

// InterruptionMetrics describes client->manager turn changes in one call
type InterruptionMetrics struct {
	InterruptionsCount int     `json:"interruptions_count"`
	TotalTransitions   int     `json:"total_transitions"`
	InterruptionRate   float64 `json:"interruption_rate"`
	AvgPause           float64 `json:"avg_pause"`
}

// TalkListenMetrics describes how speaking time is split in one call
type TalkListenMetrics struct {
	ManagerDuration   float64 `json:"manager_duration"`
	ClientDuration    float64 `json:"client_duration"`
	TalkToListenRatio float64 `json:"talk_to_listen_ratio"`
	ManagerDominance  float64 `json:"manager_dominance"`
}

// AnalyzeInterruptions measures how often the manager starts speaking less than
// InterruptionThreshold after the client stops. Overlapping speech yields a
// negative pause and is counted the same way. Only client->manager changes are
// evaluated. ok is false when the call has no such change.
func AnalyzeInterruptions(record *diarization.Record) (InterruptionMetrics, bool) {
	if !record.Valid() {
		return InterruptionMetrics{}, false
	}
	manager, client, ok := diarization.ResolveRoles(record.Segments)
	if !ok {
		return InterruptionMetrics{}, false
	}

	var (
		interruptions int
		pauses        []float64
	)
	segments := record.Segments
	for i := 1; i < len(segments); i++ {
		prev, curr := segments[i-1], segments[i]
		if prev.Speaker != client || curr.Speaker != manager {
			continue
		}
		pause := curr.Start - prev.End
		pauses = append(pauses, pause)
		if pause < InterruptionThreshold {
			interruptions++
		}
	}

	if len(pauses) == 0 {
		return InterruptionMetrics{}, false
	}

	return InterruptionMetrics{
		InterruptionsCount: interruptions,
		TotalTransitions:   len(pauses),
		InterruptionRate:   round(100*float64(interruptions)/float64(len(pauses)), 2),
		AvgPause:           round(mean(pauses), 3),
	}, true
}

// AnalyzeTalkListen splits speaking time between manager and client. Segments
// from any third label are ignored. ok is false when the client never speaks.
func AnalyzeTalkListen(record *diarization.Record) (TalkListenMetrics, bool) {
	if !record.Valid() {
		return TalkListenMetrics{}, false
	}
	manager, client, ok := diarization.ResolveRoles(record.Segments)
	if !ok {
		return TalkListenMetrics{}, false
	}

	var managerDuration, clientDuration float64
	for _, seg := range record.Segments {
		switch seg.Speaker {
		case manager:
			managerDuration += seg.Duration()
		case client:
			clientDuration += seg.Duration()
		}
	}

	if clientDuration <= 0 {
		return TalkListenMetrics{}, false
	}

	return TalkListenMetrics{
		ManagerDuration:   managerDuration,
		ClientDuration:    clientDuration,
		TalkToListenRatio: round(managerDuration/clientDuration, 2),
		ManagerDominance:  round(100*managerDuration/(managerDuration+clientDuration), 2),
	}, true
}

func round(value float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(value*pow) / pow
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

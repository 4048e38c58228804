package diarization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingSegments is returned when a record has no "segments" key
var ErrMissingSegments = errors.New("diarization record has no segments")

// SpeakerLabel is an opaque speaker identifier. Labels are only comparable
// within a single call; the same label in two calls may be different people.
type SpeakerLabel string

// numericLabelPrefix keeps numeric labels apart from string labels, so the
// number 1 and the string "1" are different speakers.
const numericLabelPrefix = "#"

// UnmarshalJSON accepts both string labels ("SPEAKER_00") and numeric labels (0)
func (l *SpeakerLabel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = SpeakerLabel(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("speaker label must be a string or number: %w", err)
	}
	// Normalise 1 and 1.0 to the same label
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
		*l = SpeakerLabel(numericLabelPrefix + strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	*l = SpeakerLabel(numericLabelPrefix + n.String())
	return nil
}

// Segment is one speaker turn, in seconds from call start
type Segment struct {
	Speaker SpeakerLabel `json:"speaker"`
	Start   float64      `json:"start"`
	End     float64      `json:"end"`
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Record is the diarization output stored for one call
type Record struct {
	Segments      []Segment `json:"segments"`
	SpeakersCount int       `json:"speakers_count"`
}

// Parse decodes a stored diarization blob. Segment order is kept as stored.
func Parse(raw string) (*Record, error) {
	var stored struct {
		Segments      *[]Segment      `json:"segments"`
		SpeakersCount json.RawMessage `json:"speakers_count"`
	}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode diarization record: %w", err)
	}
	if stored.Segments == nil {
		return nil, ErrMissingSegments
	}

	record := &Record{Segments: *stored.Segments}
	if len(stored.SpeakersCount) > 0 {
		var count json.Number
		if err := json.Unmarshal(stored.SpeakersCount, &count); err == nil {
			if f, err := count.Float64(); err == nil {
				record.SpeakersCount = int(f)
			}
		}
	}
	return record, nil
}

// Valid reports whether the record has enough segments to contain a turn change
func (r *Record) Valid() bool {
	return r != nil && len(r.Segments) >= 2
}

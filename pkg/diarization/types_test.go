package diarization

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	raw := `{"segments":[{"speaker":"A","start":0,"end":5},{"speaker":"B","start":5.2,"end":8}],"speakers_count":2}`

	record, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, record.Segments, 2)
	assert.Equal(t, SpeakerLabel("A"), record.Segments[0].Speaker)
	assert.Equal(t, 5.2, record.Segments[1].Start)
	assert.Equal(t, 2, record.SpeakersCount)
	assert.True(t, record.Valid())
}

func TestParse_NumericSpeakers(t *testing.T) {
	raw := `{"segments":[{"speaker":0,"start":0,"end":1},{"speaker":1.0,"start":1,"end":2},{"speaker":1,"start":2,"end":3}],"speakers_count":"2"}`

	record, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, SpeakerLabel("#0"), record.Segments[0].Speaker)
	assert.Equal(t, record.Segments[1].Speaker, record.Segments[2].Speaker)
	assert.Equal(t, 2, record.SpeakersCount)
}

func TestParse_NumericAndStringLabelsDiffer(t *testing.T) {
	raw := `{"segments":[{"speaker":"1","start":0,"end":4},{"speaker":1,"start":4.2,"end":6}],"speakers_count":2}`

	record, err := Parse(raw)
	require.NoError(t, err)
	assert.NotEqual(t, record.Segments[0].Speaker, record.Segments[1].Speaker)

	manager, client, ok := ResolveRoles(record.Segments)
	require.True(t, ok)
	assert.Equal(t, SpeakerLabel("1"), manager)
	assert.Equal(t, SpeakerLabel("#1"), client)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{segments`},
		{"empty string", ``},
		{"missing segments", `{"speakers_count":2}`},
		{"segments wrong type", `{"segments":"A"}`},
		{"bad speaker", `{"segments":[{"speaker":{"x":1},"start":0,"end":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			assert.Error(t, err)
		})
	}

	_, err := Parse(`{"speakers_count":2}`)
	assert.True(t, errors.Is(err, ErrMissingSegments))
}

func TestRecord_Valid(t *testing.T) {
	var nilRecord *Record
	assert.False(t, nilRecord.Valid())
	assert.False(t, (&Record{}).Valid())
	assert.False(t, (&Record{Segments: []Segment{{Speaker: "A", End: 1}}}).Valid())
}

func TestResolveRoles(t *testing.T) {
	tests := []struct {
		name     string
		segments []Segment
		manager  SpeakerLabel
		client   SpeakerLabel
		ok       bool
	}{
		{"empty", nil, "", "", false},
		{"monologue", []Segment{{Speaker: "A"}, {Speaker: "A"}}, "A", "", false},
		{"two speakers", []Segment{{Speaker: "A"}, {Speaker: "B"}}, "A", "B", true},
		{"client found after repeats", []Segment{{Speaker: "B"}, {Speaker: "B"}, {Speaker: "C"}, {Speaker: "A"}}, "B", "C", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, client, ok := ResolveRoles(tt.segments)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.manager, manager)
			assert.Equal(t, tt.client, client)
		})
	}
}

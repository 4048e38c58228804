package diarization

// ResolveRoles assigns call roles by position: whoever speaks first is the
// manager, and the first different label after that is the client. ok is false
// for an empty list or a monologue.
func ResolveRoles(segments []Segment) (manager, client SpeakerLabel, ok bool) {
	if len(segments) == 0 {
		return "", "", false
	}

	manager = segments[0].Speaker
	for _, seg := range segments[1:] {
		if seg.Speaker != manager {
			return manager, seg.Speaker, true
		}
	}
	return manager, "", false
}

package playback

// Progress returns how far through a phase playback is, in [0, 1].
// A non-positive total yields 0.
func Progress(remainingMs, totalMs int64) float64 {
	if totalMs <= 0 {
		return 0
	}

	p := 1 - float64(remainingMs)/float64(totalMs)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

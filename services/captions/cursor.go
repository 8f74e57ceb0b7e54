package captions

import "streamweave/models"

// Cursor tracks the active cue for a monotonically advancing playback
// position. Lookups walk from the previous index instead of re-scanning, so
// normal forward playback is amortized O(1). Callers must Reset after a seek
// or track switch.
type Cursor struct {
	cues []models.CaptionCue
	idx  int
}

// NewCursor returns a cursor over a sorted cue list.
func NewCursor(cues []models.CaptionCue) *Cursor {
	return &Cursor{cues: cues}
}

// Reset forces the cursor back to the first cue.
func (c *Cursor) Reset() { c.idx = 0 }

// ActiveText returns the cue text covering positionMs, if any.
func (c *Cursor) ActiveText(positionMs int64) (string, bool) {
	if len(c.cues) == 0 {
		return "", false
	}
	if c.idx >= len(c.cues) {
		c.idx = len(c.cues) - 1
	}

	// Walk backward while the position precedes the current cue.
	for c.idx > 0 && positionMs < c.cues[c.idx].StartMs {
		c.idx--
	}
	// Walk forward while the position is past the current cue.
	for c.idx < len(c.cues)-1 && positionMs > c.cues[c.idx].EndMs {
		c.idx++
	}

	cue := c.cues[c.idx]
	if positionMs >= cue.StartMs && positionMs <= cue.EndMs {
		return cue.Text, true
	}
	return "", false
}

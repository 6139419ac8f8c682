package tpnav

import "time"

// maxPoseHistoryAge bounds how long a pose sample stays in history before
// being purged, mirroring MRPT's PREVIOUS_POSES_MAX_AGE.
const maxPoseHistoryAge = 20 * time.Second

// poseSample is one timestamped pose entry.
type poseSample struct {
	t    time.Time
	pose Pose2D
}

// PoseHistory is a timeline of recent robot poses, bounded by age, that
// supports linear interpolation between the two nearest samples.
//
// Invariant: entries are strictly increasing in timestamp; after the first
// successful pose read there is always at least one entry.
type PoseHistory struct {
	samples []poseSample
}

// NewPoseHistory returns an empty history.
func NewPoseHistory() *PoseHistory {
	return &PoseHistory{}
}

// Clear empties the history (called on every IDLE->NAVIGATING transition).
func (h *PoseHistory) Clear() {
	h.samples = h.samples[:0]
}

// Insert appends a new sample and purges anything older than maxPoseHistoryAge
// relative to the newest sample. t must be strictly newer than the last entry.
func (h *PoseHistory) Insert(t time.Time, pose Pose2D) {
	if len(h.samples) > 0 && !t.After(h.samples[len(h.samples)-1].t) {
		// Reject out-of-order or duplicate timestamps to preserve the
		// strictly-increasing invariant.
		return
	}
	h.samples = append(h.samples, poseSample{t, pose})
	cutoff := t.Add(-maxPoseHistoryAge)
	i := 0
	for i < len(h.samples)-1 && h.samples[i].t.Before(cutoff) {
		i++
	}
	h.samples = h.samples[i:]
}

// Len returns the number of retained samples.
func (h *PoseHistory) Len() int {
	return len(h.samples)
}

// Empty reports whether the history currently holds no sample (never
// filled, or emptied by Clear).
func (h *PoseHistory) Empty() bool {
	return len(h.samples) == 0
}

// Latest returns the most recently inserted pose.
func (h *PoseHistory) Latest() (Pose2D, bool) {
	if len(h.samples) == 0 {
		return Pose2D{}, false
	}
	return h.samples[len(h.samples)-1].pose, true
}

// SecondLatest returns the pose before the most recent one, or the latest
// one again if there is only a single sample (degenerate segment).
func (h *PoseHistory) SecondLatest() (Pose2D, bool) {
	n := len(h.samples)
	if n == 0 {
		return Pose2D{}, false
	}
	if n == 1 {
		return h.samples[0].pose, true
	}
	return h.samples[n-2].pose, true
}

// At linearly interpolates the pose at time t between the two nearest
// samples. Returns false if the history is empty.
func (h *PoseHistory) At(t time.Time) (Pose2D, bool) {
	n := len(h.samples)
	if n == 0 {
		return Pose2D{}, false
	}
	if n == 1 || !t.After(h.samples[0].t) {
		return h.samples[0].pose, true
	}
	if !t.Before(h.samples[n-1].t) {
		return h.samples[n-1].pose, true
	}
	// Binary search for the bracketing pair.
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if h.samples[mid].t.After(t) {
			hi = mid
		} else {
			lo = mid
		}
	}
	a, b := h.samples[lo], h.samples[hi]
	span := b.t.Sub(a.t).Seconds()
	if span <= 0 {
		return a.pose, true
	}
	frac := t.Sub(a.t).Seconds() / span
	return Pose2D{
		X:   a.pose.X + frac*(b.pose.X-a.pose.X),
		Y:   a.pose.Y + frac*(b.pose.Y-a.pose.Y),
		Phi: wrapAngle(a.pose.Phi + frac*wrapAngle(b.pose.Phi-a.pose.Phi)),
	}, true
}

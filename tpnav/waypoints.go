package tpnav

import (
	"context"
	"math"
)

// WaypointsParams are the tunables from spec.md §4.2 / original
// TWaypointsNavigatorParams.
type WaypointsParams struct {
	// MaxDistanceToAllowSkipWaypoint <= 0 means unlimited.
	MaxDistanceToAllowSkipWaypoint float64
	MinTimestepsConfirmSkipWaypoints int
}

// DefaultWaypointsParams mirrors the original's defaults.
func DefaultWaypointsParams() WaypointsParams {
	return WaypointsParams{MaxDistanceToAllowSkipWaypoint: -1, MinTimestepsConfirmSkipWaypoints: 1}
}

// WaypointsNavigator is the C6 sequencer: wraps a Navigator, converting a
// sequence of waypoints into single-target navigate() calls with
// look-ahead skipping (spec.md §4.2).
type WaypointsNavigator struct {
	nav    *Navigator
	params WaypointsParams
	seq    *WaypointSequence

	poseHistory *PoseHistory
}

// NewWaypointsNavigator wraps nav. It does not touch the underlying
// Navigator's OnStartNewNavigation; wiring the decision pipeline's reset
// there, if any, is left to the caller.
func NewWaypointsNavigator(nav *Navigator, params WaypointsParams) *WaypointsNavigator {
	return &WaypointsNavigator{nav: nav, params: params, poseHistory: NewPoseHistory()}
}

// NavigateWaypoints replaces the current sequence wholesale (spec.md §3
// lifecycle: "WaypointSequence is replaced wholesale on a new waypoint
// request").
func (w *WaypointsNavigator) NavigateWaypoints(wps []*Waypoint) {
	w.nav.mu.Lock()
	defer w.nav.mu.Unlock()
	w.seq = NewWaypointSequence(wps)
	w.seq.NavigationStartedAt = w.nav.now()
	w.poseHistory.Clear()
}

// Cancel clears the sequence and forwards to the inner navigator's Cancel.
func (w *WaypointsNavigator) Cancel(ctx context.Context) {
	w.nav.mu.Lock()
	w.seq = nil
	w.nav.mu.Unlock()
	w.nav.Cancel(ctx)
}

// GetStatus returns the current sequence status (nil if none is active).
func (w *WaypointsNavigator) GetStatus() *WaypointSequence {
	w.nav.mu.Lock()
	defer w.nav.mu.Unlock()
	return w.seq
}

// IsRelativePointReachable answers spec.md §4.4.7 via the wrapped
// navigator's decision pipeline.
func (w *WaypointsNavigator) IsRelativePointReachable(localPoint Pose2D) bool {
	w.nav.mu.Lock()
	defer w.nav.mu.Unlock()
	if w.nav.pipeline == nil {
		return false
	}
	return w.nav.pipeline.IsRelativePointReachable(localPoint, w.nav.now())
}

// Step executes the waypoint-sequencing algorithm for one tick, then the
// wrapped Navigator's own step() (spec.md §4.2: "Finally, invoke the
// state-machine tick").
func (w *WaypointsNavigator) Step(ctx context.Context) {
	w.nav.mu.Lock()
	defer w.nav.mu.Unlock()
	w.stepWaypointsLocked(ctx)
	w.nav.stepLocked(ctx)
}

func (w *WaypointsNavigator) stepWaypointsLocked(ctx context.Context) {
	if w.seq == nil || w.seq.FinalGoalReached {
		return
	}
	seq := w.seq

	pv, err := w.nav.readPoseLocked(ctx)
	if err != nil {
		// The wrapped navigator's own step() will surface this as
		// NAV_ERROR; nothing more to do for the sequencer this tick.
		return
	}

	cur := pv.Pose
	var prev Pose2D
	if seq.hasLastRobotPose {
		prev = seq.LastRobotPose
	} else {
		prev = cur
	}
	seq.LastRobotPose = cur
	seq.hasLastRobotPose = true

	prevWPIndex := seq.CurrentGoalIndex

	if seq.CurrentGoalIndex >= 0 {
		wp := seq.Waypoints[seq.CurrentGoalIndex]
		dist := distancePointToSegment(wp.Target, cur, prev)
		if dist < wp.AllowedDistance || w.nav.lastNavTargetReached {
			wp.Reached = true
			w.nav.emit(EventWaypointReached, seq.CurrentGoalIndex)
			if seq.CurrentGoalIndex < len(seq.Waypoints)-1 {
				seq.CurrentGoalIndex++
			} else {
				seq.FinalGoalReached = true
			}
		}
	}

	if !seq.FinalGoalReached && seq.CurrentGoalIndex >= 0 {
		mostAdvanced := seq.CurrentGoalIndex
		begin := mostAdvanced
		for idx := seq.CurrentGoalIndex; idx < len(seq.Waypoints); idx++ {
			wp := seq.Waypoints[idx]
			local := wp.Target.Sub(cur)
			if w.params.MaxDistanceToAllowSkipWaypoint > 0 {
				if distXY(local) > w.params.MaxDistanceToAllowSkipWaypoint {
					continue
				}
			}
			reachable := w.isRelativePointReachableLocked(local)
			if reachable {
				wp.counterSeenReachable++
				if wp.counterSeenReachable > w.params.MinTimestepsConfirmSkipWaypoints {
					mostAdvanced = idx
				}
			}
			if !wp.AllowSkip {
				break
			}
		}
		if mostAdvanced >= 0 && mostAdvanced != begin {
			seq.CurrentGoalIndex = mostAdvanced
			for k := begin; k < mostAdvanced; k++ {
				seq.Waypoints[k].Reached = true
				w.nav.emit(EventWaypointReached, k)
			}
		}
	}

	if seq.CurrentGoalIndex < 0 {
		seq.CurrentGoalIndex = 0
	}

	if seq.CurrentGoalIndex >= 0 && prevWPIndex != seq.CurrentGoalIndex {
		wp := seq.Waypoints[seq.CurrentGoalIndex]
		isFinal := seq.CurrentGoalIndex == len(seq.Waypoints)-1

		w.nav.emit(EventNewWaypointTarget, seq.CurrentGoalIndex)

		target := NavTarget{
			Target:               wp.Target,
			AllowedDistance:      wp.AllowedDistance,
			TargetIsRelative:     false,
			TargetIsIntermediary: !isFinal,
		}
		_ = w.nav.navigateLocked(ctx, target)
	}
}

func (w *WaypointsNavigator) isRelativePointReachableLocked(local Pose2D) bool {
	if w.nav.pipeline == nil {
		return false
	}
	return w.nav.pipeline.IsRelativePointReachable(local, w.nav.now())
}

func distXY(p Pose2D) float64 {
	return math.Hypot(p.X, p.Y)
}

package tpnav

import (
	"context"
	"math"
	"sync"
	"time"
)

// NavigatorParams are the tunables from spec.md §4.1 / original
// TAbstractNavigatorParams.
type NavigatorParams struct {
	// DistToTargetForSendingEvent: 0 means "use the target's own
	// AllowedDistance" (matches the original's documented default).
	DistToTargetForSendingEvent float64
	AlarmNotApproachingTimeout  time.Duration
}

// DefaultNavigatorParams mirrors the original's defaults (dist=0,
// timeout=30s).
func DefaultNavigatorParams() NavigatorParams {
	return NavigatorParams{AlarmNotApproachingTimeout: 30 * time.Second}
}

// Navigator is the C5 state machine: owns NavigationState, PoseHistory,
// SentVelCmd for the lifetime of one robot session, and drives the C8
// decision pipeline on each step().
//
// A single mutex serialises every public entry point and step(), matching
// spec.md §5 ("a single re-entrant lock..."); Go has no native recursive
// mutex, so re-entrancy is instead enforced by contract: callbacks invoked
// from inside step() (event emission, sensor/actuator calls) must never
// call back into the navigator (see DESIGN.md Open Question).
type Navigator struct {
	mu sync.Mutex
	statusObserver

	params NavigatorParams

	state     NavigationState
	lastState NavigationState

	target *NavTarget

	robot    RobotInterface
	pipeline *Pipeline

	poseHistory *PoseHistory
	curPoseVel  RobotPoseVel
	havePoseVel bool

	sentVelCmd SentVelCmd

	navigationEndEventSent bool
	lastNavTargetReached   bool

	minDistSeen         float64
	lastImprovementTime time.Time

	sessionID string

	// OnStartNewNavigation is invoked once, right after the watchdog is
	// started and history cleared, on every IDLE->NAVIGATING transition.
	// cmd/navd hooks the decision pipeline's ResetForNewNavigation here to
	// reset its per-navigation scratch state (the Go analogue of the
	// original's virtual onStartNewNavigation()); WaypointsNavigator does
	// not set it.
	OnStartNewNavigation func()
}

// NewNavigator constructs a navigator in state IDLE.
func NewNavigator(robot RobotInterface, pipeline *Pipeline, params NavigatorParams) *Navigator {
	return &Navigator{
		params:      params,
		state:       StateIdle,
		lastState:   StateIdle,
		robot:       robot,
		pipeline:    pipeline,
		poseHistory: NewPoseHistory(),
	}
}

// CurrentState returns the navigator's lifecycle state.
func (n *Navigator) CurrentState() NavigationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Navigate starts single-target navigation (IDLE -> NAVIGATING). Resolves a
// relative target to absolute using the current pose (spec.md §4.1).
func (n *Navigator) Navigate(ctx context.Context, req NavTarget) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.navigateLocked(ctx, req)
}

// navigateLocked is Navigate's body, assuming n.mu is already held; used
// both by the public Navigate and internally by WaypointsNavigator, which
// holds the same lock while sequencing (both wrap the same Navigator).
func (n *Navigator) navigateLocked(ctx context.Context, req NavTarget) error {
	n.navigationEndEventSent = false
	n.lastNavTargetReached = false

	if req.TargetIsRelative {
		pv, err := n.readPoseLocked(ctx)
		if err != nil {
			n.state = StateNavError
			n.robot.Stop(ctx, true)
			return &PoseReadFailureError{Cause: err}
		}
		req.Target = pv.Pose.Compose(req.Target)
		req.TargetIsRelative = false
	}

	target := req
	n.target = &target
	n.state = StateNavigating
	n.sentVelCmd = SentVelCmd{}
	n.minDistSeen = math.MaxFloat64
	n.lastImprovementTime = n.now()
	return nil
}

// Cancel transitions to IDLE and issues a non-emergency stop. Idempotent:
// a second call is a no-op beyond re-stopping the robot (spec.md §8).
func (n *Navigator) Cancel(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelLocked(ctx)
}

func (n *Navigator) cancelLocked(ctx context.Context) {
	n.state = StateIdle
	n.lastNavTargetReached = false
	if n.robot != nil {
		n.robot.Stop(ctx, false)
	}
}

// Suspend transitions NAVIGATING -> SUSPENDED; a no-op otherwise.
func (n *Navigator) Suspend() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateNavigating {
		n.state = StateSuspended
	}
}

// Resume transitions SUSPENDED -> NAVIGATING; a no-op otherwise.
func (n *Navigator) Resume() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateSuspended {
		n.state = StateNavigating
	}
}

// ResetError transitions NAV_ERROR -> IDLE; a no-op otherwise.
func (n *Navigator) ResetError() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateNavError {
		n.state = StateIdle
	}
}

// TargetReached reports whether the current/last target was marked reached
// by the most recent step() (used by the waypoint sequencer, spec.md §4.2
// step 3 "OR the state machine signals target-reached").
func (n *Navigator) TargetReached() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastNavTargetReached
}

// Step executes one tick of the state machine (spec.md §4.1).
func (n *Navigator) Step(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stepLocked(ctx)
}

func (n *Navigator) stepLocked(ctx context.Context) {
	prevState := n.state

	switch n.state {
	case StateIdle, StateSuspended:
		if n.lastState == StateNavigating && n.robot != nil {
			n.robot.StopWatchdog()
		}

	case StateNavError:
		if n.lastState == StateNavigating {
			n.emit(EventNavEndDueToError, 0)
			if n.robot != nil {
				n.robot.Stop(ctx, false)
				n.robot.StopWatchdog()
			}
		}

	case StateNavigating:
		n.stepNavigatingLocked(ctx)
	}

	n.lastState = prevState
}

func (n *Navigator) stepNavigatingLocked(ctx context.Context) {
	if n.lastState == StateIdle {
		n.sessionID = newSessionID()
		if n.robot != nil {
			n.robot.StartWatchdog(time.Second)
		}
		n.poseHistory.Clear()
		if n.OnStartNewNavigation != nil {
			n.OnStartNewNavigation()
		}
		n.emit(EventNavStart, 0)
	}

	pv, err := n.readPoseLocked(ctx)
	if err != nil {
		n.doEmergencyStop(ctx)
		return
	}
	_ = pv

	if n.poseHistory.Empty() {
		return
	}
	cur, _ := n.poseHistory.Latest()
	prev, _ := n.poseHistory.SecondLatest()

	targetDist := distancePointToSegment(n.target.Target, cur, prev)

	distForEvent := n.params.DistToTargetForSendingEvent
	if distForEvent <= 0 {
		distForEvent = n.target.AllowedDistance
	}
	if !n.target.TargetIsIntermediary && !n.navigationEndEventSent && targetDist < distForEvent {
		n.navigationEndEventSent = true
		n.emit(EventNavEnd, 0)
	}

	if targetDist < n.target.AllowedDistance {
		n.lastNavTargetReached = true
		if !n.target.TargetIsIntermediary {
			n.robot.Stop(ctx, false)
			n.state = StateIdle
			if !n.navigationEndEventSent {
				n.navigationEndEventSent = true
				n.emit(EventNavEnd, 0)
			}
		}
		return
	}
	n.lastNavTargetReached = false

	if targetDist < n.minDistSeen {
		n.minDistSeen = targetDist
		n.lastImprovementTime = n.now()
	} else if n.now().Sub(n.lastImprovementTime) > n.params.AlarmNotApproachingTimeout {
		n.emit(EventWaySeemsBlocked, 0)
		n.state = StateNavError
		return
	}

	if n.pipeline != nil {
		n.pipeline.RunTick(ctx, n)
	}
}

// readPoseLocked refreshes curPoseVel, rate-limited to one read per 20ms
// (spec.md §4.1 step 2, §4.3), and appends to PoseHistory.
func (n *Navigator) readPoseLocked(ctx context.Context) (RobotPoseVel, error) {
	now := n.now()
	if n.havePoseVel && now.Sub(n.curPoseVel.Timestamp) < 20*time.Millisecond {
		return n.curPoseVel, nil
	}
	pv, err := n.robot.GetCurrentPoseAndSpeeds(ctx)
	if err != nil {
		return RobotPoseVel{}, err
	}
	pv.VelLocal = pv.VelGlobal.Rotate(-pv.Pose.Phi)
	n.curPoseVel = pv
	n.havePoseVel = true
	n.poseHistory.Insert(pv.Timestamp, pv.Pose)
	return pv, nil
}

func (n *Navigator) doEmergencyStop(ctx context.Context) {
	if n.robot != nil {
		n.robot.Stop(ctx, true)
	}
	n.state = StateNavError
}

// distancePointToSegment returns the shortest distance from p to the
// segment [a,b] (degenerates to point distance if a==b).
func distancePointToSegment(p, a, b Pose2D) float64 {
	abx, aby := b.X-a.X, b.Y-a.Y
	segLenSq := abx*abx + aby*aby
	if segLenSq == 0 {
		return p.Dist(a)
	}
	apx, apy := p.X-a.X, p.Y-a.Y
	t := (apx*abx + apy*aby) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := Pose2D{X: a.X + t*abx, Y: a.Y + t*aby}
	return p.Dist(closest)
}

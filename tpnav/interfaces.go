package tpnav

import (
	"context"
	"encoding/json"
	"time"
)

// RobotInterface is the borrowed collaborator the navigator calls into:
// read pose/velocity, send/stop velocity commands, manage the watchdog and
// emit lifecycle events (spec.md §6).
type RobotInterface interface {
	GetCurrentPoseAndSpeeds(ctx context.Context) (RobotPoseVel, error)
	ChangeSpeeds(ctx context.Context, cmd VelCmd) bool
	ChangeSpeedsNOP(ctx context.Context) bool
	Stop(ctx context.Context, emergency bool) bool
	EmergencyStopCmd() VelCmd

	StartWatchdog(timeout time.Duration)
	StopWatchdog()

	SendEvent(ev NavEvent)

	// GetNavigationTime returns a monotonic clock reading: wall time for a
	// real robot, simulated time inside a simulator.
	GetNavigationTime() time.Time
}

// ObstacleSet is the workspace obstacle representation the derived
// decision pipeline senses and projects into TP-space. It is deliberately
// opaque to the core: concrete PTGs interpret it when projecting.
type ObstacleSet interface {
	Timestamp() time.Time
}

// ObstacleSensor is the derived hook that populates a fresh ObstacleSet
// each tick (spec.md §4.4.2).
type ObstacleSensor interface {
	SenseObstacles(ctx context.Context) (ObstacleSet, error)
}

// PTG is the abstract parameterised trajectory generator contract
// (spec.md §6). Geometry families are external plug-ins; tpnav only
// consumes this interface.
type PTG interface {
	AlphaCount() int
	AlphaToIndex(alpha float64) int
	IndexToAlpha(k int) float64
	RefDistance() float64
	PathCount() int

	InitCollisionGrid(force bool)
	InitTPObstacles(out []float64)
	InitClearance(out *ClearanceDiagram)

	// InverseMap maps a workspace point to (direction index, normalised
	// distance, inDomain).
	InverseMap(x, y float64) (k int, distNorm float64, inDomain bool)

	GetPathPose(k int, step int) Pose2D
	GetPathDist(k int, step int) float64
	GetPathStepForDist(k int, d float64) (step int, ok bool)
	StepDuration() time.Duration

	UpdateCurrentRobotVel(vel Twist2D)
	DirectionToMotionCommand(k int) VelCmd

	SupportsNOPVelCmd() bool
	MaxTimeInNOP(k int) time.Duration
	IsBijectiveAt(k int, step int) bool

	ScorePriority() float64
	EvalPathRelativePriority(k int, distNorm float64) float64

	// ProjectObstacles projects obs into the TP-obstacle array out (already
	// sized to PathCount(), pre-filled with RefDistance()) and, if clearance
	// is non-nil, fills in the clearance diagram. originOffset is the
	// relative pose offset described in spec.md §4.4.4
	// (-(sense-to-cmd pose diff)).
	ProjectObstacles(obs ObstacleSet, originOffset Pose2D, out []float64, clearance *ClearanceDiagram)
}

// HolonomicLog is an opaque per-call diagnostic payload a holonomic method
// may attach to its decision, surfaced to observers only.
type HolonomicLog map[string]float64

// HolonomicMethod is the abstract strategy that picks a direction+speed in
// TP-space given obstacles and target (spec.md §6).
type HolonomicMethod interface {
	Initialize(cfg json.RawMessage) error
	SetAssociatedPTG(ptg PTG)
	EnableApproachTargetSlowdown(enabled bool)

	// Navigate returns (direction in radians, speed in [0,1], log).
	Navigate(obstacles []float64, clearance *ClearanceDiagram, targetX, targetY float64) (directionRad float64, speed float64, log HolonomicLog)
}

// Optimizer ranks candidate motions by weighted criteria (spec.md §6).
type Optimizer interface {
	LoadConfig(cfg json.RawMessage) error
	// Decide returns the chosen candidate index and per-candidate
	// evaluation scalars (one map per candidate, for observers).
	Decide(candidates []*CandidateMovement) (chosenIndex int, evaluations []map[string]float64)
}

// NavEvent is the event union emitted toward the robot interface's
// observers (spec.md §6).
type NavEvent struct {
	Kind         NavEventKind
	SessionID    string
	At           time.Time
	WaypointIdx  int // only meaningful for WaypointReached/NewWaypointTarget
}

// NavEventKind enumerates the event kinds the robot interface emits.
type NavEventKind int

const (
	EventNavStart NavEventKind = iota
	EventNavEnd
	EventNavEndDueToError
	EventWaySeemsBlocked
	EventWaypointReached
	EventNewWaypointTarget
)

func (k NavEventKind) String() string {
	switch k {
	case EventNavStart:
		return "nav_start"
	case EventNavEnd:
		return "nav_end"
	case EventNavEndDueToError:
		return "nav_end_due_to_error"
	case EventWaySeemsBlocked:
		return "way_seems_blocked"
	case EventWaypointReached:
		return "waypoint_reached"
	case EventNewWaypointTarget:
		return "new_waypoint_target"
	default:
		return "unknown"
	}
}

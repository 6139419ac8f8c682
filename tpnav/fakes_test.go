package tpnav

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// fakeRobot is a minimal in-memory RobotInterface/ObstacleSensor used
// across the package's tests; it never touches the network.
type fakeRobot struct {
	mu sync.Mutex

	pose       RobotPoseVel
	changeOK   bool
	stops      int
	events     []NavEvent
	watchdogOn bool
	now        time.Time
}

func newFakeRobot(pose RobotPoseVel) *fakeRobot {
	return &fakeRobot{pose: pose, changeOK: true, now: time.Unix(1000, 0)}
}

func (r *fakeRobot) GetCurrentPoseAndSpeeds(ctx context.Context) (RobotPoseVel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose, nil
}

func (r *fakeRobot) setPose(p Pose2D) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pose.Pose = p
	r.pose.Timestamp = r.now
}

func (r *fakeRobot) advance(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = r.now.Add(d)
}

func (r *fakeRobot) ChangeSpeeds(ctx context.Context, cmd VelCmd) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changeOK
}

func (r *fakeRobot) ChangeSpeedsNOP(ctx context.Context) bool { return true }

func (r *fakeRobot) Stop(ctx context.Context, emergency bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return true
}

func (r *fakeRobot) EmergencyStopCmd() VelCmd { return VelCmd{IsStop: true} }

func (r *fakeRobot) StartWatchdog(timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchdogOn = true
}

func (r *fakeRobot) StopWatchdog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchdogOn = false
}

func (r *fakeRobot) SendEvent(ev NavEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *fakeRobot) GetNavigationTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

func (r *fakeRobot) eventKinds() []NavEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NavEventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// fakeSensor always returns an empty obstacle field, useful for tests that
// only exercise the state machine, not the TP-space projection.
type fakeSensor struct{ at time.Time }

func (s fakeSensor) SenseObstacles(ctx context.Context) (ObstacleSet, error) {
	return PointCloudObstacles{At: s.at}, nil
}

// fakePTG is a trivial single-direction PTG used to exercise Pipeline/score
// plumbing without pulling in the real geometry package.
type fakePTG struct {
	numPaths  int
	refDist   float64
	supportsNOP bool
}

func (p *fakePTG) AlphaCount() int       { return p.numPaths }
func (p *fakePTG) PathCount() int        { return p.numPaths }
func (p *fakePTG) RefDistance() float64  { return p.refDist }
func (p *fakePTG) IndexToAlpha(k int) float64 {
	return -3.14159 + (float64(k)+0.5)*(2*3.14159/float64(p.numPaths))
}
func (p *fakePTG) AlphaToIndex(alpha float64) int { return p.numPaths / 2 }
func (p *fakePTG) InitCollisionGrid(force bool)   {}
func (p *fakePTG) InitTPObstacles(out []float64) {
	for i := range out {
		out[i] = p.refDist
	}
}
func (p *fakePTG) InitClearance(out *ClearanceDiagram) {}
func (p *fakePTG) InverseMap(x, y float64) (int, float64, bool) {
	return p.numPaths / 2, 0.5, true
}
func (p *fakePTG) GetPathPose(k int, step int) Pose2D {
	return Pose2D{X: float64(step) * 0.1}
}
func (p *fakePTG) GetPathDist(k int, step int) float64 { return float64(step) * 0.1 }
func (p *fakePTG) GetPathStepForDist(k int, d float64) (int, bool) {
	return int(d / 0.1), true
}
func (p *fakePTG) StepDuration() time.Duration { return 50 * time.Millisecond }
func (p *fakePTG) UpdateCurrentRobotVel(vel Twist2D) {}
func (p *fakePTG) DirectionToMotionCommand(k int) VelCmd {
	return VelCmd{AlphaIndex: k, Linear: Twist2D{VX: 1}}
}
func (p *fakePTG) SupportsNOPVelCmd() bool               { return p.supportsNOP }
func (p *fakePTG) MaxTimeInNOP(k int) time.Duration      { return time.Second }
func (p *fakePTG) IsBijectiveAt(k int, step int) bool    { return true }
func (p *fakePTG) ScorePriority() float64                { return 1.0 }
func (p *fakePTG) EvalPathRelativePriority(k int, d float64) float64 { return 1.0 }
func (p *fakePTG) ProjectObstacles(obs ObstacleSet, originOffset Pose2D, out []float64, clearance *ClearanceDiagram) {
}

// fakeHolonomic always steers straight at the target with full speed.
type fakeHolonomic struct{ ptg PTG }

func (h *fakeHolonomic) Initialize(cfg json.RawMessage) error { return nil }
func (h *fakeHolonomic) SetAssociatedPTG(ptg PTG)              { h.ptg = ptg }
func (h *fakeHolonomic) EnableApproachTargetSlowdown(enabled bool) {}
func (h *fakeHolonomic) Navigate(obstacles []float64, clearance *ClearanceDiagram, targetX, targetY float64) (float64, float64, HolonomicLog) {
	return 0, 1.0, nil
}

// fakeOptimizer always picks candidate 0 if valid, otherwise the last slot.
type fakeOptimizer struct{}

func (o *fakeOptimizer) LoadConfig(cfg json.RawMessage) error { return nil }
func (o *fakeOptimizer) Decide(candidates []*CandidateMovement) (int, []map[string]float64) {
	evals := make([]map[string]float64, len(candidates))
	for i, c := range candidates {
		if c != nil {
			evals[i] = c.Props
		}
	}
	if len(candidates) > 0 && !candidates[0].Invalid() {
		return 0, evals
	}
	return len(candidates) - 1, evals
}

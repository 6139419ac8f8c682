// Package ptg ships the default parameterized trajectory generator family:
// a differential-drive "circular, then straight" path per direction index,
// the Go analogue of MRPT's CPTG_DiffDrive_CS. It registers itself with
// tpnav's C10 registry from init(), so importing the package for side
// effect is enough to make the "diffdrive_cs" class available to config.
package ptg

import (
	"encoding/json"
	"math"
	"time"

	"tpnav/tpnav"
)

// Config is the JSON config block for one diffdrive_cs instance. K selects
// the family member: +1 for forward paths, -1 for backward, mirroring the
// original's "K=+1 forward paths; K=-1 for backwards paths" comment.
type Config struct {
	K               float64 `json:"k"`
	MaxLinearSpeed  float64 `json:"max_linear_speed"`
	MaxAngularSpeed float64 `json:"max_angular_speed"`
	NumPaths        int     `json:"num_paths"`
	RefDistance     float64 `json:"ref_distance"`
	StepPeriodMs    int     `json:"step_period_ms"`
	MaxNOPMs        int     `json:"max_nop_ms"`
}

func defaultConfig() Config {
	return Config{
		K:               1,
		MaxLinearSpeed:  0.6,
		MaxAngularSpeed: 1.2,
		NumPaths:        75,
		RefDistance:     6.0,
		StepPeriodMs:    50,
		MaxNOPMs:        1000,
	}
}

// DiffDriveCS is one PTG family member: direction index k maps to a
// turn-then-straight arc, exactly as CPTG_DiffDrive_CS::ptgDiffDriveSteeringFunction
// drives (v, w) for t < T and (v, 0) afterward.
type DiffDriveCS struct {
	cfg        Config
	stepPeriod time.Duration
	maxSteps   int
	curVel     tpnav.Twist2D
}

// New constructs a diffdrive_cs PTG from its raw JSON config block.
func New(raw json.RawMessage) (tpnav.PTG, error) {
	cfg := defaultConfig()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}
	if cfg.K == 0 {
		cfg.K = 1
	}
	p := &DiffDriveCS{
		cfg:        cfg,
		stepPeriod: time.Duration(cfg.StepPeriodMs) * time.Millisecond,
	}
	p.maxSteps = int(cfg.RefDistance / (cfg.MaxLinearSpeed * p.stepPeriod.Seconds()))
	return p, nil
}

func init() {
	tpnav.RegisterPTG("diffdrive_cs", New)
}

func (p *DiffDriveCS) AlphaCount() int { return p.cfg.NumPaths }
func (p *DiffDriveCS) PathCount() int  { return p.cfg.NumPaths }
func (p *DiffDriveCS) RefDistance() float64 { return p.cfg.RefDistance }
func (p *DiffDriveCS) StepDuration() time.Duration { return p.stepPeriod }

func (p *DiffDriveCS) IndexToAlpha(k int) float64 {
	n := float64(p.cfg.NumPaths)
	return -math.Pi + (float64(k)+0.5)*(2*math.Pi/n)
}

func (p *DiffDriveCS) AlphaToIndex(alpha float64) int {
	alpha = wrapPi(alpha)
	n := p.cfg.NumPaths
	k := int(math.Floor((alpha + math.Pi) / (2 * math.Pi / float64(n))))
	return clampInt(k, 0, n-1)
}

// turnRadius is R = V_MAX/W_MAX, the constant curvature radius of
// CPTG_DiffDrive_CS.
func (p *DiffDriveCS) turnRadius() float64 {
	return p.cfg.MaxLinearSpeed / p.cfg.MaxAngularSpeed
}

// turnDuration is T = 0.847*sqrt(|alpha|)*R/V_MAX from the original.
func (p *DiffDriveCS) turnDuration(alpha float64) float64 {
	return 0.847 * math.Sqrt(math.Abs(alpha)) * p.turnRadius() / p.cfg.MaxLinearSpeed
}

// angularRateDuringTurn is w = W_MAX*min(1, 1-exp(-alpha^2)), signed by
// alpha and K, from the original steering function.
func (p *DiffDriveCS) angularRateDuringTurn(alpha float64) float64 {
	w := p.cfg.MaxAngularSpeed * math.Min(1.0, 1.0-math.Exp(-alpha*alpha))
	if alpha < 0 {
		w = -w
	}
	return w * p.cfg.K
}

// poseAtTime is the closed-form forward kinematics of the turn-then-straight
// arc: a constant-curvature circular arc for t<T, then a straight
// continuation at the endpoint heading.
func (p *DiffDriveCS) poseAtTime(k int, t float64) tpnav.Pose2D {
	alpha := p.IndexToAlpha(k)
	T := p.turnDuration(alpha)
	w1 := p.angularRateDuringTurn(alpha)
	v := p.cfg.MaxLinearSpeed * p.cfg.K

	turnT := t
	if turnT > T {
		turnT = T
	}
	var arcPose tpnav.Pose2D
	if w1 == 0 {
		arcPose = tpnav.Pose2D{X: v * turnT}
	} else {
		r := v / w1
		arcPose = tpnav.Pose2D{
			X:   r * math.Sin(w1*turnT),
			Y:   r * (1 - math.Cos(w1*turnT)),
			Phi: w1 * turnT,
		}
	}
	if t <= T {
		return arcPose
	}
	straightT := t - T
	cos, sin := math.Cos(arcPose.Phi), math.Sin(arcPose.Phi)
	return tpnav.Pose2D{
		X:   arcPose.X + v*cos*straightT,
		Y:   arcPose.Y + v*sin*straightT,
		Phi: arcPose.Phi,
	}
}

func (p *DiffDriveCS) GetPathPose(k int, step int) tpnav.Pose2D {
	return p.poseAtTime(k, float64(step)*p.stepPeriod.Seconds())
}

// GetPathDist is the arc length travelled: speed magnitude is constant
// throughout both phases, so distance is linear in step count.
func (p *DiffDriveCS) GetPathDist(k int, step int) float64 {
	return math.Abs(p.cfg.MaxLinearSpeed) * float64(step) * p.stepPeriod.Seconds()
}

func (p *DiffDriveCS) GetPathStepForDist(k int, d float64) (int, bool) {
	if d < 0 || d > p.cfg.RefDistance+1e-6 {
		return 0, false
	}
	step := int(d / (math.Abs(p.cfg.MaxLinearSpeed) * p.stepPeriod.Seconds()))
	if step > p.maxSteps {
		step = p.maxSteps
	}
	return step, true
}

func (p *DiffDriveCS) InitCollisionGrid(force bool) {
	// Forward kinematics are closed-form (poseAtTime); no precomputed
	// collision grid is needed the way MRPT's grid-based PTG caches one.
}

func (p *DiffDriveCS) InitTPObstacles(out []float64) {
	for i := range out {
		out[i] = p.cfg.RefDistance
	}
}

func (p *DiffDriveCS) InitClearance(out *tpnav.ClearanceDiagram) {}

// InverseMap adapts ptgDiffDriveC.WorldSpaceToTP's circular-arc
// approximation: treat the whole turn-then-straight path as a single
// circular arc of radius r = (x^2+y^2)/2y for the purpose of inversion.
func (p *DiffDriveCS) InverseMap(x, y float64) (k int, distNorm float64, inDomain bool) {
	if p.cfg.K*x < 0 {
		return 0, 0, false
	}
	var d float64
	if y != 0 {
		r := (x*x + y*y) / (2 * y)
		rMin := p.cfg.MaxLinearSpeed / p.cfg.MaxAngularSpeed

		var theta float64
		switch {
		case p.cfg.K >= 0 && y > 0:
			theta = math.Atan2(x, math.Abs(r)-y)
		case p.cfg.K >= 0:
			theta = math.Atan2(x, math.Abs(r)+y)
		case y > 0:
			theta = math.Atan2(-x, math.Abs(r)-y)
		default:
			theta = math.Atan2(-x, math.Abs(r)+y)
		}
		theta = wrapTo2Pi(theta)
		d = theta * math.Abs(r)

		if math.Abs(r) < rMin {
			r = math.Copysign(rMin, r)
		}
		alpha := math.Pi * p.cfg.MaxLinearSpeed / (r * p.cfg.MaxAngularSpeed)
		k = p.AlphaToIndex(alpha)
	} else {
		if math.Signbit(x) == math.Signbit(p.cfg.K) {
			k = p.AlphaToIndex(0)
			d = math.Abs(x)
		} else {
			k = p.cfg.NumPaths - 1
			d = p.cfg.RefDistance * 10
		}
	}
	distNorm = clampf(d/p.cfg.RefDistance, 0, 1)
	return k, distNorm, true
}

func (p *DiffDriveCS) UpdateCurrentRobotVel(vel tpnav.Twist2D) { p.curVel = vel }

func (p *DiffDriveCS) DirectionToMotionCommand(k int) tpnav.VelCmd {
	alpha := p.IndexToAlpha(k)
	w1 := p.angularRateDuringTurn(alpha)
	v := p.cfg.MaxLinearSpeed * p.cfg.K
	return tpnav.VelCmd{
		AlphaIndex: k,
		Linear:     tpnav.Twist2D{VX: v, Omega: w1},
	}
}

func (p *DiffDriveCS) SupportsNOPVelCmd() bool { return true }

func (p *DiffDriveCS) MaxTimeInNOP(k int) time.Duration {
	return time.Duration(p.cfg.MaxNOPMs) * time.Millisecond
}

// IsBijectiveAt reports whether the WS<->TPS mapping is treated as
// one-to-one at this point on the path: true while |w*t| <= pi, where w is
// the direction's turn-phase angular rate and t the elapsed time at step.
// t counts the whole path, straight phase included, so a curved direction
// reports false once w*t passes pi even though its heading stops changing
// after the turn duration T.
func (p *DiffDriveCS) IsBijectiveAt(k int, step int) bool {
	alpha := p.IndexToAlpha(k)
	w1 := p.angularRateDuringTurn(alpha)
	t := float64(step) * p.stepPeriod.Seconds()
	return math.Abs(w1*t) <= math.Pi
}

func (p *DiffDriveCS) ScorePriority() float64 { return 1.0 }

func (p *DiffDriveCS) EvalPathRelativePriority(k int, distNorm float64) float64 { return 1.0 }

// ProjectObstacles walks the sensed point cloud and, for every point that
// falls inside this PTG's domain, shrinks the corresponding direction's
// free distance to the point's own path distance — a point-by-point
// stand-in for CPTG_DiffDrive_CollisionGridBased's precomputed grid lookup.
func (p *DiffDriveCS) ProjectObstacles(obs tpnav.ObstacleSet, originOffset tpnav.Pose2D, out []float64, clearance *tpnav.ClearanceDiagram) {
	pc, ok := obs.(tpnav.PointCloudObstacles)
	if !ok {
		return
	}
	for _, pt := range pc.Points {
		local := originOffset.Compose(pt)
		k, distNorm, inDomain := p.InverseMap(local.X, local.Y)
		if !inDomain || k < 0 || k >= len(out) {
			continue
		}
		d := distNorm * p.cfg.RefDistance
		if d < out[k] {
			out[k] = d
		}
		if clearance != nil {
			clearance.AddSample(k, distNorm, math.Hypot(local.X, local.Y))
		}
	}
}

func wrapPi(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func wrapTo2Pi(a float64) float64 {
	for a < 0 {
		a += 2 * math.Pi
	}
	for a >= 2*math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

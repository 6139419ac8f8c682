// Package holonomic ships the default holonomic method: a virtual-force-
// field style direction/speed chooser over the TP-space obstacle array,
// registered under "vff" with tpnav's C10 registry.
package holonomic

import (
	"encoding/json"
	"math"

	"tpnav/tpnav"
)

// Config tunes the per-direction score weights (obstacle clearance versus
// target attraction) and the approach-slowdown distance.
type Config struct {
	TargetAttractionWeight float64 `json:"target_attraction_weight"`
	ClearanceGain          float64 `json:"clearance_gain"`
	ApproachSlowdownDist   float64 `json:"approach_slowdown_dist"`
}

func defaultConfig() Config {
	return Config{
		TargetAttractionWeight: 0.6,
		ClearanceGain:          0.4,
		ApproachSlowdownDist:   0.20,
	}
}

// VFF chooses the direction that best balances obstacle clearance against
// attraction toward the target bearing, the way a virtual-force-field
// controller sums a repulsive obstacle term and an attractive goal term per
// candidate direction.
type VFF struct {
	cfg                    Config
	ptg                    tpnav.PTG
	approachSlowdownOn     bool
}

// New constructs a VFF holonomic method from its raw JSON config block.
func New(raw json.RawMessage) (tpnav.HolonomicMethod, error) {
	h := &VFF{cfg: defaultConfig(), approachSlowdownOn: true}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &h.cfg); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func init() {
	tpnav.RegisterHolonomic("vff", New)
}

func (h *VFF) Initialize(cfg json.RawMessage) error {
	if len(cfg) == 0 {
		return nil
	}
	return json.Unmarshal(cfg, &h.cfg)
}

func (h *VFF) SetAssociatedPTG(ptg tpnav.PTG) { h.ptg = ptg }

func (h *VFF) EnableApproachTargetSlowdown(enabled bool) { h.approachSlowdownOn = enabled }

// Navigate scores every direction bin by combining its normalised obstacle
// clearance with how closely it points toward the target, picks the best,
// and scales speed down near the target when approach slowdown is enabled.
func (h *VFF) Navigate(obstacles []float64, clearance *tpnav.ClearanceDiagram, targetX, targetY float64) (float64, float64, tpnav.HolonomicLog) {
	n := len(obstacles)
	if n == 0 || h.ptg == nil {
		return 0, 0, nil
	}

	targetAngle := math.Atan2(targetY, targetX)
	targetDist := math.Hypot(targetX, targetY)

	bestK := 0
	bestScore := -math.MaxFloat64
	for k := 0; k < n; k++ {
		alpha := h.ptg.IndexToAlpha(k)
		angularAlign := math.Cos(alpha - targetAngle) // 1 = pointing straight at target
		clearanceTerm := obstacles[k]

		score := h.cfg.ClearanceGain*clearanceTerm + h.cfg.TargetAttractionWeight*angularAlign
		if score > bestScore {
			bestScore = score
			bestK = k
		}
	}

	direction := h.ptg.IndexToAlpha(bestK)
	speed := clampf(obstacles[bestK], 0, 1)

	if h.approachSlowdownOn && h.cfg.ApproachSlowdownDist > 0 && targetDist < h.cfg.ApproachSlowdownDist {
		speed *= targetDist / h.cfg.ApproachSlowdownDist
	}

	log := tpnav.HolonomicLog{
		"chosen_k":     float64(bestK),
		"chosen_score": bestScore,
		"target_angle": targetAngle,
		"target_dist":  targetDist,
	}
	return direction, speed, log
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

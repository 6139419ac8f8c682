// Package optimizer ships the default multi-objective optimiser: a
// weighted linear combination of the C9 scorer's named factors, registered
// under "weighted_sum" with tpnav's C10 registry.
package optimizer

import (
	"encoding/json"

	"tpnav/tpnav"
)

// Weights names every factor the C9 scorer fills in (spec.md §4.5). A
// factor missing from the map contributes zero.
type Weights map[string]float64

func defaultWeights() Weights {
	return Weights{
		"colision_free_distance": 5.0,
		"dist_eucl_final":        -1.0,
		"hysteresis":              1.0,
		"clearance":               1.0,
		"eta":                    -1.0,
		"ptg_priority":            0.5,
	}
}

// WeightedSum picks the candidate with the highest weighted sum of its
// Props, skipping invalidated candidates outright.
type WeightedSum struct {
	weights Weights
}

// New constructs a weighted-sum optimiser from its raw JSON config block
// ({"weights": {...}}, missing keys fall back to the default weights).
func New(raw json.RawMessage) (tpnav.Optimizer, error) {
	o := &WeightedSum{weights: defaultWeights()}
	if len(raw) > 0 {
		if err := o.LoadConfig(raw); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func init() {
	tpnav.RegisterOptimizer("weighted_sum", New)
}

type weightsConfig struct {
	Weights Weights `json:"weights"`
}

func (o *WeightedSum) LoadConfig(cfg json.RawMessage) error {
	var wc weightsConfig
	if err := json.Unmarshal(cfg, &wc); err != nil {
		return err
	}
	for k, v := range wc.Weights {
		o.weights[k] = v
	}
	return nil
}

// Decide returns the index of the candidate with the highest weighted sum
// of its scored factors, or the NOP/last slot invalidated if every
// candidate is invalid (the pipeline's issue() treats a nil/invalid choice
// as "stop").
func (o *WeightedSum) Decide(candidates []*tpnav.CandidateMovement) (int, []map[string]float64) {
	evals := make([]map[string]float64, len(candidates))
	bestIdx := -1
	bestScore := -1e18

	for i, cm := range candidates {
		if cm == nil || cm.Invalid() {
			evals[i] = map[string]float64{"total": -1}
			continue
		}
		total := 0.0
		for k, w := range o.weights {
			total += w * cm.Props[k]
		}
		eval := make(map[string]float64, len(cm.Props)+1)
		for k, v := range cm.Props {
			eval[k] = v
		}
		eval["total"] = total
		evals[i] = eval

		if total > bestScore {
			bestScore = total
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		bestIdx = len(candidates) - 1
	}
	return bestIdx, evals
}

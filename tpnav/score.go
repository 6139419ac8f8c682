package tpnav

import "math"

// scoreInput bundles everything the C9 scorer (spec.md §4.5) needs to fill
// in a single candidate's Props bag. One is built per candidate inside the
// C8 pipeline (pipeline.go).
type scoreInput struct {
	ptg    PTG
	ptgIdx int

	obstacles []float64 // normalised TP-obstacles for this PTG, len == PathCount()
	clearance *ClearanceDiagram

	moveK      int // the direction actually chosen for this candidate
	targetK    int
	targetDistNorm float64

	speedScale float64 // holonomic-chosen / NOP-continued speed in [0,1]

	isNOPCont bool
	// NOP-only fields:
	curK               int     // recovered direction index of the robot's current position on the path
	curNormD           float64 // normalised distance already travelled on the path
	bijectiveAtMoveK   bool
	bijectiveAtCurK    bool
	originalColFreeDist float64 // previous colfreedist_move_k, reported as original_col_free_dist
	elapsedNOP         float64 // seconds since the NOP-continued command was sent

	lastCmd    *VelCmd // previous issued command, for hysteresis; nil if none
	thisCmd    VelCmd  // the kinematic command this candidate would issue

	endpointPose  Pose2D // trajectory endpoint pose (workspace frame)
	wsTargetX     float64
	wsTargetY     float64
}

// scoreCandidate fills cm.Props with the factors of spec.md §4.5 and the
// auxiliary optimiser context, invalidating cm if any invariant the scorer
// itself must police is violated.
func scoreCandidate(cm *CandidateMovement, in scoreInput) {
	if cm.Props == nil {
		cm.Props = map[string]float64{}
	}

	obsAtMoveK := 1.0
	if in.moveK >= 0 && in.moveK < len(in.obstacles) {
		obsAtMoveK = in.obstacles[in.moveK]
	}

	// colision_free_distance
	var colFree float64
	if !in.isNOPCont {
		if in.moveK == in.targetK && obsAtMoveK > in.targetDistNorm+0.05 {
			colFree = math.Min(1.0, obsAtMoveK/(in.targetDistNorm+0.05))
		} else {
			colFree = obsAtMoveK
		}
	} else {
		obsAtCurK := obsAtMoveK
		if in.curK >= 0 && in.curK < len(in.obstacles) {
			obsAtCurK = in.obstacles[in.curK]
		}
		var base float64
		if in.bijectiveAtMoveK && in.bijectiveAtCurK {
			base = math.Min(obsAtMoveK, obsAtCurK)
		} else {
			base = obsAtMoveK
		}
		if base >= 0.99 {
			colFree = base // open path: no discount
		} else {
			colFree = base - in.curNormD
		}
	}
	cm.Props["colision_free_distance"] = colFree

	// dist_eucl_final
	cm.Props["dist_eucl_final"] = in.endpointPose.Dist(Pose2D{X: in.wsTargetX, Y: in.wsTargetY})

	// hysteresis
	var hysteresis float64
	if in.ptg.SupportsNOPVelCmd() {
		if in.isNOPCont {
			hysteresis = 1.0
		}
	} else if in.lastCmd != nil {
		hysteresis = math.Min(
			expSimilarity(in.thisCmd.Linear.VX, in.lastCmd.Linear.VX),
			math.Min(
				expSimilarity(in.thisCmd.Linear.VY, in.lastCmd.Linear.VY),
				expSimilarity(in.thisCmd.Linear.Omega, in.lastCmd.Linear.Omega),
			),
		)
		if hysteresis < 0.5 {
			hysteresis = 0.5
		}
	}
	cm.Props["hysteresis"] = hysteresis

	// clearance
	if in.clearance != nil {
		cm.Props["clearance"] = in.clearance.Clearance(in.moveK, in.targetDistNorm*1.01)
	} else {
		cm.Props["clearance"] = 1.0
	}

	// eta
	var eta float64
	if in.speedScale > 0 {
		if step, ok := in.ptg.GetPathStepForDist(in.targetK, in.targetDistNorm*in.ptg.RefDistance()); ok {
			eta = in.ptg.StepDuration().Seconds() * float64(step) * in.speedScale
			if in.isNOPCont {
				eta -= in.elapsedNOP
			}
		}
	}
	cm.Props["eta"] = eta

	// ptg_priority
	cm.Props["ptg_priority"] = in.ptg.ScorePriority() * in.ptg.EvalPathRelativePriority(in.targetK, in.targetDistNorm)

	// auxiliary optimiser context
	cm.Props["ptg_idx"] = float64(in.ptgIdx)
	cm.Props["ref_dist"] = in.ptg.RefDistance()
	cm.Props["target_dir"] = in.ptg.IndexToAlpha(in.targetK)
	cm.Props["target_k"] = float64(in.targetK)
	cm.Props["target_d_norm"] = in.targetDistNorm
	cm.Props["move_k"] = float64(in.moveK)
	if in.isNOPCont {
		cm.Props["is_PTG_cont"] = 1
	}
	cm.Props["num_paths"] = float64(in.ptg.PathCount())
	cm.Props["WS_target_x"] = in.wsTargetX
	cm.Props["WS_target_y"] = in.wsTargetY
	cm.Props["robpose_x"] = in.endpointPose.X
	cm.Props["robpose_y"] = in.endpointPose.Y
	cm.Props["robpose_phi"] = in.endpointPose.Phi
	if in.isNOPCont {
		cm.Props["original_col_free_dist"] = in.originalColFreeDist
	}
}

// expSimilarity is exp(-|Δ|/0.20), the per-component hysteresis kernel.
func expSimilarity(a, b float64) float64 {
	return math.Exp(-math.Abs(a-b) / 0.20)
}

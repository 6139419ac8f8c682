package tpnav

import (
	"context"
	"math"
	"time"
)

// PipelineParams are the tunables from spec.md §4.4 not already owned by
// an individual PTG.
type PipelineParams struct {
	SecureDistanceStart float64
	SecureDistanceEnd   float64

	SpeedFilterTau time.Duration
	TickPeriod     time.Duration

	RobotAbsoluteSpeedLimits Twist2D

	MaxDistForTimeBasedPrediction float64
	MaxDistPredictedActual        float64

	EvaluateClearance bool

	// RestrictedPTGs, if non-empty, is the set of PTG indices allowed this
	// navigation (spec.md §4.4.4 "restricted-PTG set").
	RestrictedPTGs map[int]bool
}

// DefaultPipelineParams mirrors the original's defaults closely enough to
// run out of the box.
func DefaultPipelineParams() PipelineParams {
	return PipelineParams{
		SecureDistanceStart:            0.05,
		SecureDistanceEnd:              0.20,
		SpeedFilterTau:                 300 * time.Millisecond,
		TickPeriod:                     100 * time.Millisecond,
		RobotAbsoluteSpeedLimits:       Twist2D{VX: 1.0, VY: 1.0, Omega: 2.0},
		MaxDistForTimeBasedPrediction:  0.6,
		MaxDistPredictedActual:         0.3,
	}
}

// Pipeline is the C8 reactive decision pipeline: sense -> project ->
// evaluate -> decide -> issue -> log, executed from Navigator.Step's
// NAVIGATING branch (spec.md §4.4).
type Pipeline struct {
	Params PipelineParams

	PTGs       []PTG
	Holonomics []HolonomicMethod
	Optimizer  Optimizer
	Sensor     ObstacleSensor
	Delay      *DelayModel

	initialized  bool
	perPTGInfo   []PerPTGInfo
	infoTimestamp time.Time

	lastTarget     Pose2D
	haveLastTarget bool

	curObstacles ObstacleSet

	lastIssuedCmd *VelCmd
}

// NewPipeline wires the C8 pipeline from already-constructed strategies.
func NewPipeline(ptgs []PTG, holonomics []HolonomicMethod, optimizer Optimizer, sensor ObstacleSensor, delay *DelayModel, params PipelineParams) *Pipeline {
	return &Pipeline{
		Params:     params,
		PTGs:       ptgs,
		Holonomics: holonomics,
		Optimizer:  optimizer,
		Sensor:     sensor,
		Delay:      delay,
		perPTGInfo: make([]PerPTGInfo, len(ptgs)+1),
	}
}

// ResetForNewNavigation clears per-navigation scratch state; hook it up to
// Navigator.OnStartNewNavigation.
func (p *Pipeline) ResetForNewNavigation() {
	p.haveLastTarget = false
	p.lastIssuedCmd = nil
}

// RunTick executes one pass of the decision pipeline. Called with n.mu
// already held by Navigator.Step.
func (p *Pipeline) RunTick(ctx context.Context, n *Navigator) {
	tickStart := n.now()
	nPTGs := len(p.PTGs)

	if !p.initialized {
		for _, ptg := range p.PTGs {
			ptg.InitCollisionGrid(true)
		}
		p.initialized = true
	}
	if len(p.perPTGInfo) != nPTGs+1 {
		p.perPTGInfo = make([]PerPTGInfo, nPTGs+1)
	}

	obstacles, err := p.Sensor.SenseObstacles(ctx)
	if err != nil {
		n.robot.Stop(ctx, true)
		n.state = StateNavError
		return
	}
	p.curObstacles = obstacles
	p.Delay.ObserveObstacles(tickStart, obstacles.Timestamp())

	pv := n.curPoseVel
	p.Delay.ObservePose(tickStart, pv.Timestamp)
	offsets := p.Delay.Compute(pv.VelLocal)

	for _, ptg := range p.PTGs {
		ptg.UpdateCurrentRobotVel(pv.VelLocal)
	}

	targetChanged := !p.haveLastTarget || n.target.Target != p.lastTarget
	p.lastTarget = n.target.Target
	p.haveLastTarget = true

	poseAtCmd := pv.Pose.Compose(offsets.PTGOriginOffset)
	relTarget := n.target.Target.Sub(poseAtCmd)

	p.perPTGInfo = p.perPTGInfo[:nPTGs+1]
	for i := range p.perPTGInfo {
		p.perPTGInfo[i] = PerPTGInfo{}
	}
	p.infoTimestamp = tickStart

	candidates := make([]*CandidateMovement, nPTGs+1)
	for i, ptg := range p.PTGs {
		if p.Params.RestrictedPTGs != nil && len(p.Params.RestrictedPTGs) > 0 && !p.Params.RestrictedPTGs[i] {
			cm := &CandidateMovement{PTGIndex: i}
			cm.Invalidate()
			candidates[i] = cm
			continue
		}
		candidates[i] = p.buildPTGCandidate(n, i, ptg, poseAtCmd, relTarget, offsets)
	}
	candidates[nPTGs] = p.buildNOPCandidate(n, tickStart, targetChanged, offsets)

	chosenIdx, evals := p.Optimizer.Decide(candidates)
	p.issue(ctx, n, candidates, evals, chosenIdx, tickStart, offsets)
}

func (p *Pipeline) buildPTGCandidate(n *Navigator, i int, ptg PTG, poseAtCmd, relTarget Pose2D, offsets PoseOffsets) *CandidateMovement {
	cm := &CandidateMovement{PTGIndex: i}
	ipf := &p.perPTGInfo[i]

	k, d, inDomain := ptg.InverseMap(relTarget.X, relTarget.Y)
	if !inDomain {
		cm.Invalidate()
		return cm
	}
	ipf.Valid = true
	ipf.TargetAlphaIndex = k
	ipf.TargetDistNorm = d
	ipf.TPTarget = relTarget

	numPaths := ptg.PathCount()
	refDist := ptg.RefDistance()
	tpObstacles := make([]float64, numPaths)
	for j := range tpObstacles {
		tpObstacles[j] = refDist
	}
	var clearance *ClearanceDiagram
	if p.Params.EvaluateClearance {
		clearance = NewClearanceDiagram(numPaths)
	}

	originOffset := negatePose(offsets.PTGOriginOffset)
	ptg.ProjectObstacles(p.curObstacles, originOffset, tpObstacles, clearance)
	for j := range tpObstacles {
		tpObstacles[j] = clampf(tpObstacles[j]/refDist, 0, 1)
	}
	ipf.TPObstacles = tpObstacles
	ipf.Clearance = clearance

	holo := p.Holonomics[i]
	holo.EnableApproachTargetSlowdown(!n.target.TargetIsIntermediary)
	dirRad, speed, _ := holo.Navigate(tpObstacles, clearance, relTarget.X, relTarget.Y)
	alphaIdx := ptg.AlphaToIndex(dirRad)

	free := tpObstacles[clampInt(alphaIdx, 0, numPaths-1)]
	if ptg.SupportsNOPVelCmd() {
		speedAbs := math.Hypot(n.curPoseVel.VelLocal.VX, n.curPoseVel.VelLocal.VY)
		free -= speedAbs * ptg.MaxTimeInNOP(alphaIdx).Seconds()
	}
	speed *= safetyRamp(free, p.Params.SecureDistanceStart, p.Params.SecureDistanceEnd)

	cm.AlphaIndex = alphaIdx
	cm.Speed = speed

	endpointPose := poseAtCmd.Compose(pathEndpointPose(ptg, alphaIdx, d*refDist))

	scoreCandidate(cm, scoreInput{
		ptg: ptg, ptgIdx: i,
		obstacles: tpObstacles, clearance: clearance,
		moveK: alphaIdx, targetK: k, targetDistNorm: d,
		speedScale:   speed,
		lastCmd:      p.lastIssuedCmd,
		thisCmd:      ptg.DirectionToMotionCommand(alphaIdx),
		endpointPose: endpointPose,
		wsTargetX:    n.target.Target.X,
		wsTargetY:    n.target.Target.Y,
	})
	return cm
}

func (p *Pipeline) buildNOPCandidate(n *Navigator, tickStart time.Time, targetChanged bool, offsets PoseOffsets) *CandidateMovement {
	cm := &CandidateMovement{PTGIndex: -1, IsNOP: true}
	sc := n.sentVelCmd
	if !sc.Valid || targetChanged {
		cm.Invalidate()
		return cm
	}
	ptg := p.PTGs[sc.PTGIndex]
	if !ptg.SupportsNOPVelCmd() {
		cm.Invalidate()
		return cm
	}
	elapsed := tickStart.Sub(sc.SentAt).Seconds()
	if elapsed >= ptg.MaxTimeInNOP(sc.AlphaIndex).Seconds() {
		cm.Invalidate()
		return cm
	}
	cm.PTGIndex = sc.PTGIndex

	sendPlusChange := sc.SentAt.Add(time.Duration(p.Delay.tChange.last() * float64(time.Second)))
	poseAtSend, ok := n.poseHistory.At(sendPlusChange)
	if !ok {
		cm.Invalidate()
		return cm
	}
	relTarget := n.target.Target.Sub(poseAtSend)
	relCurPose := n.curPoseVel.Pose.Sub(poseAtSend)

	var curK int
	var curNormD float64
	var bijectiveAtCurK bool
	refDist := ptg.RefDistance()

	if math.Hypot(relCurPose.X, relCurPose.Y) <= p.Params.MaxDistForTimeBasedPrediction {
		elapsedSinceSend := n.now().Sub(sc.SentAt).Seconds()
		sd := ptg.StepDuration().Seconds()
		if sd <= 0 {
			cm.Invalidate()
			return cm
		}
		curStep := int(elapsedSinceSend / sd)
		predicted := ptg.GetPathPose(sc.AlphaIndex, curStep)
		if predicted.Dist(relCurPose) > p.Params.MaxDistPredictedActual {
			cm.Invalidate()
			return cm
		}
		curK = sc.AlphaIndex
		curNormD = clampf(ptg.GetPathDist(sc.AlphaIndex, curStep)/refDist, 0, 1)
		bijectiveAtCurK = ptg.IsBijectiveAt(curK, curStep)
	} else {
		k, d, inDomain := ptg.InverseMap(relCurPose.X, relCurPose.Y)
		if !inDomain {
			cm.Invalidate()
			return cm
		}
		curNormD = d
		if step, ok2 := ptg.GetPathStepForDist(k, d*refDist); ok2 && ptg.IsBijectiveAt(k, step) {
			curK = k
			bijectiveAtCurK = true
		} else {
			// Non-bijective: fall back to trusting the originally
			// commanded direction over the recovered one.
			curK = sc.AlphaIndex
			bijectiveAtCurK = false
		}
	}

	targetK, targetDistNorm, inDomain := ptg.InverseMap(relTarget.X, relTarget.Y)
	if !inDomain {
		cm.Invalidate()
		return cm
	}

	moveK := sc.AlphaIndex
	numPaths := ptg.PathCount()
	tpObstacles := make([]float64, numPaths)
	for j := range tpObstacles {
		tpObstacles[j] = refDist
	}
	originOffset := negatePose(offsets.PTGOriginOffset)
	ptg.ProjectObstacles(p.curObstacles, originOffset, tpObstacles, nil)
	for j := range tpObstacles {
		tpObstacles[j] = clampf(tpObstacles[j]/refDist, 0, 1)
	}

	bijectiveAtMoveK := ptg.IsBijectiveAt(moveK, 0)

	cm.AlphaIndex = moveK
	cm.Speed = sc.SpeedScale

	endpointPose := poseAtSend.Compose(pathEndpointPose(ptg, moveK, targetDistNorm*refDist))

	scoreCandidate(cm, scoreInput{
		ptg: ptg, ptgIdx: sc.PTGIndex,
		obstacles:           tpObstacles,
		moveK:               moveK,
		targetK:             targetK,
		targetDistNorm:       targetDistNorm,
		speedScale:          sc.SpeedScale,
		isNOPCont:           true,
		curK:                curK,
		curNormD:            curNormD,
		bijectiveAtMoveK:    bijectiveAtMoveK,
		bijectiveAtCurK:     bijectiveAtCurK,
		originalColFreeDist: sc.ColFreeDistMoveK,
		elapsedNOP:          elapsed,
		endpointPose:        endpointPose,
		wsTargetX:           n.target.Target.X,
		wsTargetY:           n.target.Target.Y,
	})
	return cm
}

func (p *Pipeline) issue(ctx context.Context, n *Navigator, candidates []*CandidateMovement, evals []map[string]float64, chosenIdx int, tickStart time.Time, offsets PoseOffsets) {
	nPTGs := len(p.PTGs)
	chosen := candidates[chosenIdx]

	snap := StatusSnapshot{
		Timestamp:   tickStart,
		State:       n.state,
		Pose:        n.curPoseVel.Pose,
		ChosenIndex: chosenIdx,
		ChosenIsNOP: chosenIdx == nPTGs,
		Candidates:  evals,
		DeltaSense:  offsets.DeltaSense,
		DeltaCmd:    offsets.DeltaCmd,
	}
	defer func() { n.setSnapshot(snap) }()

	if chosen == nil || chosen.Invalid() {
		n.robot.Stop(ctx, true)
		return
	}

	if chosenIdx == nPTGs {
		if !n.robot.ChangeSpeedsNOP(ctx) {
			n.state = StateNavError
			return
		}
		return
	}

	ptg := p.PTGs[chosenIdx]
	cmd := ptg.DirectionToMotionCommand(chosen.AlphaIndex)
	if cmd.IsStop {
		n.robot.Stop(ctx, true)
		return
	}

	cmd.Linear.VX *= chosen.Speed
	cmd.Linear.VY *= chosen.Speed
	cmd.Linear.Omega *= chosen.Speed
	cmd.Linear = clampTwist(cmd.Linear, p.Params.RobotAbsoluteSpeedLimits)

	if p.lastIssuedCmd != nil {
		beta := p.blendBeta()
		cmd.Linear = blendTwist(cmd.Linear, p.lastIssuedCmd.Linear, beta)
	}

	sendTime := n.now()
	ok := n.robot.ChangeSpeeds(ctx, cmd)
	changeDuration := n.now().Sub(sendTime)
	if !ok {
		n.robot.Stop(ctx, true)
		n.state = StateNavError
		return
	}
	p.Delay.ObserveSend(tickStart, sendTime, changeDuration)

	n.sentVelCmd = SentVelCmd{
		Valid:            true,
		PTGIndex:         chosenIdx,
		AlphaIndex:       cmd.AlphaIndex,
		TargetAlphaIndex: p.perPTGInfo[chosenIdx].TargetAlphaIndex,
		ColFreeDistMoveK: chosen.Props["colision_free_distance"],
		SentAt:           sendTime,
		SpeedScale:       chosen.Speed,
		PoseAtIssue:      n.curPoseVel,
	}
	p.lastIssuedCmd = &cmd
}

func (p *Pipeline) blendBeta() float64 {
	tp := p.Params.TickPeriod.Seconds()
	tau := p.Params.SpeedFilterTau.Seconds()
	if tp+tau <= 0 {
		return 1.0
	}
	return tp / (tp + tau)
}

// IsRelativePointReachable implements spec.md §4.4.7: true iff some PTG's
// inverse-map places wp inside its domain with obstacle headroom, and the
// per-tick info used to answer is fresh (< 500ms old).
func (p *Pipeline) IsRelativePointReachable(wp Pose2D, now time.Time) bool {
	if p.infoTimestamp.IsZero() || now.Sub(p.infoTimestamp) > 500*time.Millisecond {
		return false
	}
	for i, ptg := range p.PTGs {
		if i >= len(p.perPTGInfo) {
			continue
		}
		info := p.perPTGInfo[i]
		if !info.Valid || info.TPObstacles == nil {
			continue
		}
		k, d, inDomain := ptg.InverseMap(wp.X, wp.Y)
		if !inDomain || k < 0 || k >= len(info.TPObstacles) {
			continue
		}
		if info.TPObstacles[k] > 1.01*d {
			return true
		}
	}
	return false
}

func negatePose(p Pose2D) Pose2D {
	return Pose2D{X: -p.X, Y: -p.Y, Phi: -p.Phi}
}

func pathEndpointPose(ptg PTG, k int, dist float64) Pose2D {
	step, ok := ptg.GetPathStepForDist(k, dist)
	if !ok {
		step = 0
	}
	return ptg.GetPathPose(k, step)
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

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// safetyRamp implements spec.md §4.4.4's safety scaling ramp.
func safetyRamp(free, start, end float64) float64 {
	if free <= start {
		return 0
	}
	if free >= end {
		return 1
	}
	if end <= start {
		return 1
	}
	return (free - start) / (end - start)
}

func clampTwist(t, limits Twist2D) Twist2D {
	return Twist2D{
		VX:    clampAbs(t.VX, limits.VX),
		VY:    clampAbs(t.VY, limits.VY),
		Omega: clampAbs(t.Omega, limits.Omega),
	}
}

func clampAbs(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// blendTwist low-pass blends newCmd against prevCmd with weight beta on the
// new command (spec.md §4.4.6).
func blendTwist(newCmd, prevCmd Twist2D, beta float64) Twist2D {
	return Twist2D{
		VX:    beta*newCmd.VX + (1-beta)*prevCmd.VX,
		VY:    beta*newCmd.VY + (1-beta)*prevCmd.VY,
		Omega: beta*newCmd.Omega + (1-beta)*prevCmd.Omega,
	}
}

package tpnav

import (
	"log"
	"time"
)

// delayLowpassAlpha is the EWMA smoothing factor for the per-stage latency
// estimators, carried over unchanged from the original's
// ESTIM_LOWPASSFILTER_ALPHA and from the teacher's AnchorTracker.cfg.Alpha
// smoothing of camera-anchor position/velocity.
const delayLowpassAlpha = 0.7

// extrapolationWarnThreshold is the |offset| above which pose extrapolation
// is flagged as likely inaccurate.
const extrapolationWarnThreshold = 1250 * time.Millisecond

// ewma is a single exponentially-weighted moving average, the same shape
// as the per-field smoothing the teacher's AnchorTracker.Update performs
// on cx/cy/size, generalized here to smooth a scalar latency instead of an
// image coordinate.
type ewma struct {
	alpha     float64
	value     float64
	primed    bool
}

func newEWMA(alpha float64) *ewma {
	return &ewma{alpha: alpha}
}

func (e *ewma) filter(sample float64) float64 {
	if !e.primed {
		e.value = sample
		e.primed = true
		return e.value
	}
	e.value = e.alpha*e.value + (1-e.alpha)*sample
	return e.value
}

func (e *ewma) last() float64 {
	return e.value
}

// DelayModel maintains low-pass estimates of per-stage tick latencies and
// computes the two pose-extrapolation offsets described in spec.md §4.3.
type DelayModel struct {
	Enabled bool

	tObs    *ewma // time between tick start and last obstacle observation
	tPose   *ewma // time between tick start and last pose read
	tChange *ewma // duration of the send-command call
	tSend   *ewma // offset from tick start to command send

	lastPoseRead time.Time
}

// NewDelayModel constructs a model; enabled mirrors
// params_abstract_ptg_navigator.use_delays_model.
func NewDelayModel(enabled bool) *DelayModel {
	return &DelayModel{
		Enabled: enabled,
		tObs:    newEWMA(delayLowpassAlpha),
		tPose:   newEWMA(delayLowpassAlpha),
		tChange: newEWMA(delayLowpassAlpha),
		tSend:   newEWMA(delayLowpassAlpha),
	}
}

// ShouldSkipPoseRead implements the 20ms rate limit on pose reads
// (spec.md §4.3, §4.1 step 2): a fresh read less than 20ms old is reused.
func (d *DelayModel) ShouldSkipPoseRead(now time.Time) bool {
	if d.lastPoseRead.IsZero() {
		return false
	}
	return now.Sub(d.lastPoseRead) < 20*time.Millisecond
}

// NotePoseRead records that a pose read happened at t.
func (d *DelayModel) NotePoseRead(t time.Time) {
	d.lastPoseRead = t
}

// ObserveObstacles feeds a fresh t_obs sample (tickStart - obstacleTimestamp).
func (d *DelayModel) ObserveObstacles(tickStart, obstacleTimestamp time.Time) {
	d.tObs.filter(tickStart.Sub(obstacleTimestamp).Seconds())
}

// ObservePose feeds a fresh t_pose sample (tickStart - poseTimestamp).
func (d *DelayModel) ObservePose(tickStart, poseTimestamp time.Time) {
	d.tPose.filter(tickStart.Sub(poseTimestamp).Seconds())
}

// ObserveSend feeds fresh t_send/t_change samples measured around an actual
// send_command call.
func (d *DelayModel) ObserveSend(tickStart, sendTime time.Time, changeDuration time.Duration) {
	d.tSend.filter(sendTime.Sub(tickStart).Seconds())
	d.tChange.filter(changeDuration.Seconds())
}

// PoseOffsets is the pair of extrapolation offsets from spec.md §4.3.
type PoseOffsets struct {
	DeltaSense time.Duration
	DeltaCmd   time.Duration
	// PTGOriginOffset is the relative pose the PTG evaluation origin must
	// be shifted by: pose_at_cmd - pose_at_sense.
	PTGOriginOffset Pose2D
}

// Compute derives the two offsets and the resulting relative PTG-origin
// pose, extrapolating from the given body-frame velocity. When the model
// is disabled, all three are zero (spec.md invariant 8).
func (d *DelayModel) Compute(velLocal Twist2D) PoseOffsets {
	if !d.Enabled {
		return PoseOffsets{}
	}
	deltaSense := time.Duration((d.tObs.last() - d.tPose.last()) * float64(time.Second))
	deltaCmd := time.Duration((d.tSend.last() + 0.5*d.tChange.last() - d.tPose.last()) * float64(time.Second))

	if d.absDuration(deltaSense) > extrapolationWarnThreshold {
		log.Printf("tpnav: delays model deltaSense=%v too large, pose extrapolation may be inaccurate", deltaSense)
	}
	if d.absDuration(deltaCmd) > extrapolationWarnThreshold {
		log.Printf("tpnav: delays model deltaCmd=%v too large, pose extrapolation may be inaccurate", deltaCmd)
	}

	poseAtSense := extrapolatePose(velLocal, deltaSense)
	poseAtCmd := extrapolatePose(velLocal, deltaCmd)

	return PoseOffsets{
		DeltaSense:      deltaSense,
		DeltaCmd:        deltaCmd,
		PTGOriginOffset: poseAtCmd.Sub(poseAtSense),
	}
}

func (d *DelayModel) absDuration(v time.Duration) time.Duration {
	if v < 0 {
		return -v
	}
	return v
}

// extrapolatePose advances a relative pose by dt using body-frame velocity:
// Δx = v·Δt, Δy = v_y·Δt, Δφ = ω·Δt.
func extrapolatePose(vel Twist2D, dt time.Duration) Pose2D {
	t := dt.Seconds()
	return Pose2D{
		X:   vel.VX * t,
		Y:   vel.VY * t,
		Phi: wrapAngle(vel.Omega * t),
	}
}

package tpnav

import "fmt"

// PoseReadFailureError wraps a failed GetCurrentPoseAndSpeeds call.
type PoseReadFailureError struct {
	Cause error
}

func (e *PoseReadFailureError) Error() string {
	return fmt.Sprintf("tpnav: pose read failed: %v", e.Cause)
}
func (e *PoseReadFailureError) Unwrap() error { return e.Cause }

// CommandSendFailureError wraps a failed ChangeSpeeds/ChangeSpeedsNOP call.
type CommandSendFailureError struct{}

func (e *CommandSendFailureError) Error() string { return "tpnav: command send failed" }

// SenseFailureError wraps a failed SenseObstacles call.
type SenseFailureError struct {
	Cause error
}

func (e *SenseFailureError) Error() string {
	return fmt.Sprintf("tpnav: obstacle sensing failed: %v", e.Cause)
}
func (e *SenseFailureError) Unwrap() error { return e.Cause }

// StallTimeoutError reports the "way seems blocked" soft error.
type StallTimeoutError struct {
	Elapsed float64 // seconds since last improvement
}

func (e *StallTimeoutError) Error() string {
	return fmt.Sprintf("tpnav: stall timeout, no progress for %.1fs", e.Elapsed)
}

// ConfigInvalidError reports a missing/malformed required config key
// (spec.md §7); fatal at load time.
type ConfigInvalidError struct {
	Key    string
	Reason string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("tpnav: invalid config key %q: %s", e.Key, e.Reason)
}

package tpnav

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNavigator(robot *fakeRobot) *Navigator {
	return NewNavigator(robot, nil, DefaultNavigatorParams())
}

func TestNavigatorStartsIdle(t *testing.T) {
	t.Parallel()

	n := newTestNavigator(newFakeRobot(RobotPoseVel{}))
	assert.Equal(t, StateIdle, n.CurrentState())
}

func TestNavigateTransitionsToNavigating(t *testing.T) {
	t.Parallel()

	robot := newFakeRobot(RobotPoseVel{Pose: Pose2D{X: 0, Y: 0}, Timestamp: time.Unix(1000, 0)})
	n := newTestNavigator(robot)

	err := n.Navigate(context.Background(), NavTarget{Target: Pose2D{X: 5}, AllowedDistance: 0.1})
	require.NoError(t, err)
	assert.Equal(t, StateNavigating, n.CurrentState())
}

func TestNavigateRelativeTargetResolvesAgainstCurrentPose(t *testing.T) {
	t.Parallel()

	robot := newFakeRobot(RobotPoseVel{Pose: Pose2D{X: 2, Y: 3, Phi: 0}, Timestamp: time.Unix(1000, 0)})
	n := newTestNavigator(robot)

	err := n.Navigate(context.Background(), NavTarget{
		Target:           Pose2D{X: 1, Y: 0},
		TargetIsRelative: true,
		AllowedDistance:  0.1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, n.target.Target.X, 1e-9)
	assert.False(t, n.target.TargetIsRelative)
}

func TestSuspendResumeOnlyApplyFromExpectedStates(t *testing.T) {
	t.Parallel()

	n := newTestNavigator(newFakeRobot(RobotPoseVel{}))

	n.Suspend() // no-op from IDLE
	assert.Equal(t, StateIdle, n.CurrentState())

	require.NoError(t, n.Navigate(context.Background(), NavTarget{Target: Pose2D{X: 1}, AllowedDistance: 0.1}))
	n.Suspend()
	assert.Equal(t, StateSuspended, n.CurrentState())

	n.Resume()
	assert.Equal(t, StateNavigating, n.CurrentState())

	n.Resume() // no-op, already navigating
	assert.Equal(t, StateNavigating, n.CurrentState())
}

func TestResetErrorOnlyAppliesFromNavError(t *testing.T) {
	t.Parallel()

	n := newTestNavigator(newFakeRobot(RobotPoseVel{}))
	n.ResetError() // no-op from IDLE
	assert.Equal(t, StateIdle, n.CurrentState())

	n.mu.Lock()
	n.state = StateNavError
	n.mu.Unlock()

	n.ResetError()
	assert.Equal(t, StateIdle, n.CurrentState())
}

func TestCancelIsIdempotentAndStopsRobot(t *testing.T) {
	t.Parallel()

	robot := newFakeRobot(RobotPoseVel{})
	n := newTestNavigator(robot)
	require.NoError(t, n.Navigate(context.Background(), NavTarget{Target: Pose2D{X: 1}, AllowedDistance: 0.1}))

	n.Cancel(context.Background())
	assert.Equal(t, StateIdle, n.CurrentState())
	n.Cancel(context.Background())
	assert.Equal(t, StateIdle, n.CurrentState())

	robot.mu.Lock()
	assert.Equal(t, 2, robot.stops)
	robot.mu.Unlock()
}

func TestStepDetectsArrivalAndReturnsToIdle(t *testing.T) {
	t.Parallel()

	robot := newFakeRobot(RobotPoseVel{Pose: Pose2D{X: 0, Y: 0}, Timestamp: time.Unix(1000, 0)})
	n := newTestNavigator(robot)
	require.NoError(t, n.Navigate(context.Background(), NavTarget{Target: Pose2D{X: 1}, AllowedDistance: 0.5}))

	robot.advance(time.Millisecond)
	robot.setPose(Pose2D{X: 0, Y: 0})
	n.Step(context.Background())
	assert.Equal(t, StateNavigating, n.CurrentState())

	robot.advance(50 * time.Millisecond)
	robot.setPose(Pose2D{X: 0.9, Y: 0})
	n.Step(context.Background())

	assert.Equal(t, StateIdle, n.CurrentState())
	assert.True(t, n.TargetReached())
	assert.Contains(t, robot.eventKinds(), EventNavStart)
	assert.Contains(t, robot.eventKinds(), EventNavEnd)
}

func TestStepRaisesWaySeemsBlockedAfterStall(t *testing.T) {
	t.Parallel()

	robot := newFakeRobot(RobotPoseVel{Pose: Pose2D{X: 0, Y: 0}, Timestamp: time.Unix(1000, 0)})
	params := DefaultNavigatorParams()
	params.AlarmNotApproachingTimeout = 100 * time.Millisecond
	n := NewNavigator(robot, nil, params)

	require.NoError(t, n.Navigate(context.Background(), NavTarget{Target: Pose2D{X: 10}, AllowedDistance: 0.1}))

	robot.advance(time.Millisecond)
	robot.setPose(Pose2D{X: 0, Y: 0})
	n.Step(context.Background())

	// Stuck at the same distance for longer than the stall timeout.
	robot.advance(200 * time.Millisecond)
	robot.setPose(Pose2D{X: 0, Y: 0})
	n.Step(context.Background())

	assert.Equal(t, StateNavError, n.CurrentState())
	assert.Contains(t, robot.eventKinds(), EventWaySeemsBlocked)
}

package tpnav

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPipeline wires one fakePTG/fakeHolonomic pair with a fakeOptimizer
// and fakeSensor, the minimal assembly needed to drive RunTick end to end
// without pulling in the real ptg/holonomic/optimizer packages.
func newTestPipeline() *Pipeline {
	p := &fakePTG{numPaths: 8, refDist: 2, supportsNOP: true}
	h := &fakeHolonomic{}
	h.SetAssociatedPTG(p)
	return NewPipeline(
		[]PTG{p},
		[]HolonomicMethod{h},
		&fakeOptimizer{},
		fakeSensor{at: time.Unix(1000, 0)},
		NewDelayModel(false),
		DefaultPipelineParams(),
	)
}

func TestRunTickIssuesACommandOnAFreshTarget(t *testing.T) {
	t.Parallel()

	robot := newFakeRobot(RobotPoseVel{Pose: Pose2D{X: 0, Y: 0}, Timestamp: time.Unix(1000, 0)})
	pipeline := newTestPipeline()
	nav := NewNavigator(robot, pipeline, DefaultNavigatorParams())

	require.NoError(t, nav.Navigate(context.Background(), NavTarget{Target: Pose2D{X: 5}, AllowedDistance: 0.1}))

	robot.advance(time.Millisecond)
	robot.setPose(Pose2D{X: 0, Y: 0})
	nav.Step(context.Background())

	robot.advance(50 * time.Millisecond)
	robot.setPose(Pose2D{X: 0, Y: 0})
	nav.Step(context.Background())

	snap := nav.Snapshot()
	assert.False(t, snap.ChosenIsNOP)
	assert.GreaterOrEqual(t, snap.ChosenIndex, 0)

	robot.mu.Lock()
	defer robot.mu.Unlock()
	assert.True(t, robot.changeOK)
}

func TestIsRelativePointReachableFalseBeforeAnyTick(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline()
	assert.False(t, pipeline.IsRelativePointReachable(Pose2D{X: 1}, time.Now()))
}

func TestResetForNewNavigationClearsLastIssuedCommand(t *testing.T) {
	t.Parallel()

	pipeline := newTestPipeline()
	pipeline.lastIssuedCmd = &VelCmd{}
	pipeline.haveLastTarget = true

	pipeline.ResetForNewNavigation()
	assert.Nil(t, pipeline.lastIssuedCmd)
	assert.False(t, pipeline.haveLastTarget)
}

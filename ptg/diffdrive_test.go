package ptg

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpnav/tpnav"
)

func newTestDiffDrive(t *testing.T) *DiffDriveCS {
	t.Helper()
	p, err := New(nil)
	require.NoError(t, err)
	return p.(*DiffDriveCS)
}

func TestIndexToAlphaAlphaToIndexRoundTrip(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	for k := 0; k < p.PathCount(); k++ {
		alpha := p.IndexToAlpha(k)
		assert.Equal(t, k, p.AlphaToIndex(alpha))
	}
}

func TestStraightAheadDirectionHasZeroAlpha(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	centerK := p.AlphaToIndex(0)
	assert.InDelta(t, 0, p.IndexToAlpha(centerK), 1e-6)
}

func TestGetPathPoseMatchesGetPathDistOnStraightDirection(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	k := p.AlphaToIndex(0)

	pose := p.GetPathPose(k, 10)
	dist := p.GetPathDist(k, 10)

	assert.InDelta(t, dist, pose.X, 1e-9)
	assert.InDelta(t, 0, pose.Y, 1e-9)
	assert.InDelta(t, 0, pose.Phi, 1e-9)
}

func TestGetPathStepForDistInvertsGetPathDist(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	k := p.AlphaToIndex(0)

	dist := p.GetPathDist(k, 5)
	step, ok := p.GetPathStepForDist(k, dist)
	require.True(t, ok)
	assert.Equal(t, 5, step)
}

func TestGetPathStepForDistRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	_, ok := p.GetPathStepForDist(0, -1)
	assert.False(t, ok)

	_, ok = p.GetPathStepForDist(0, p.cfg.RefDistance*2)
	assert.False(t, ok)
}

func TestInverseMapStraightAheadPoint(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	k, distNorm, inDomain := p.InverseMap(1, 0)

	require.True(t, inDomain)
	assert.Equal(t, p.AlphaToIndex(0), k)
	assert.InDelta(t, 1.0/p.cfg.RefDistance, distNorm, 1e-9)
}

func TestInverseMapBehindRobotIsOutOfDomainForForwardFamily(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t) // K=+1, forward-only family
	_, _, inDomain := p.InverseMap(-1, 0)
	assert.False(t, inDomain)
}

func TestInverseMapCurvedPointMapsToNonCenterIndex(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	k, distNorm, inDomain := p.InverseMap(1, 1)

	require.True(t, inDomain)
	assert.NotEqual(t, p.AlphaToIndex(0), k)
	assert.Greater(t, distNorm, 0.0)
}

func TestDirectionToMotionCommandStraightAheadHasNoAngularRate(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	cmd := p.DirectionToMotionCommand(p.AlphaToIndex(0))

	assert.InDelta(t, p.cfg.MaxLinearSpeed, cmd.Linear.VX, 1e-9)
	assert.InDelta(t, 0, cmd.Linear.Omega, 1e-9)
}

func TestIsBijectiveAtStraightDirectionAlwaysBijective(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	k := p.AlphaToIndex(0)
	assert.True(t, p.IsBijectiveAt(k, p.maxSteps))
}

func TestIsBijectiveAtBecomesFalsePastHalfTurn(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	k := p.AlphaToIndex(math.Pi / 2) // sharply curved direction
	assert.True(t, p.IsBijectiveAt(k, 0))
	assert.False(t, p.IsBijectiveAt(k, p.maxSteps))
}

func TestProjectObstaclesShrinksFreeDistanceForInDomainPoint(t *testing.T) {
	t.Parallel()

	p := newTestDiffDrive(t)
	out := make([]float64, p.PathCount())
	p.InitTPObstacles(out)

	k := p.AlphaToIndex(0)
	before := out[k]

	obs := tpnav.PointCloudObstacles{Points: []tpnav.Pose2D{{X: 1.0, Y: 0.0}}, At: time.Now()}
	p.ProjectObstacles(obs, tpnav.Pose2D{}, out, nil)

	assert.Less(t, out[k], before)
}

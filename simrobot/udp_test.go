package simrobot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpnav/tpnav"
)

func TestParsePoseFrame(t *testing.T) {
	t.Parallel()

	pv, err := parsePoseFrame("P,1.5,2.0,3.0,0.25,0.5,0.0,0.1")
	require.NoError(t, err)

	assert.Equal(t, 2.0, pv.Pose.X)
	assert.Equal(t, 3.0, pv.Pose.Y)
	assert.Equal(t, 0.25, pv.Pose.Phi)
	assert.Equal(t, 0.5, pv.VelGlobal.VX)
	assert.Equal(t, 0.1, pv.VelGlobal.Omega)
}

func TestParsePoseFrameRejectsWrongFieldCount(t *testing.T) {
	t.Parallel()

	_, err := parsePoseFrame("P,1.5,2.0,3.0")
	assert.Error(t, err)
}

func TestParsePoseFrameRejectsNonNumericField(t *testing.T) {
	t.Parallel()

	_, err := parsePoseFrame("P,1.5,x,3.0,0.25,0.5,0.0,0.1")
	assert.Error(t, err)
}

func TestParseObstacleFrame(t *testing.T) {
	t.Parallel()

	o, err := parseObstacleFrame("O,1.5,1.0,0.0,2.0,0.5")
	require.NoError(t, err)

	require.Len(t, o.Points, 2)
	assert.Equal(t, 1.0, o.Points[0].X)
	assert.Equal(t, 0.0, o.Points[0].Y)
	assert.Equal(t, 2.0, o.Points[1].X)
	assert.Equal(t, 0.5, o.Points[1].Y)
}

func TestParseObstacleFrameEmptyCloud(t *testing.T) {
	t.Parallel()

	o, err := parseObstacleFrame("O,1.5")
	require.NoError(t, err)
	assert.Empty(t, o.Points)
}

func TestParseObstacleFrameRejectsOddCoordinateCount(t *testing.T) {
	t.Parallel()

	_, err := parseObstacleFrame("O,1.5,1.0,0.0,2.0")
	assert.Error(t, err)
}

func TestUDPRobotSendFailsGracefullyWithoutConnection(t *testing.T) {
	t.Parallel()

	r := &UDPRobot{store: &robotStore{}}
	assert.False(t, r.send(tpnav.VelCmd{IsStop: true}))
}

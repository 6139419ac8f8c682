package tpnav

import "time"

// PointCloudObstacles is the concrete ObstacleSet every shipped PTG family
// knows how to project: a flat list of obstacle points in the robot's
// local frame at the moment they were sensed.
type PointCloudObstacles struct {
	Points []Pose2D
	At     time.Time
}

// Timestamp implements ObstacleSet.
func (o PointCloudObstacles) Timestamp() time.Time { return o.At }

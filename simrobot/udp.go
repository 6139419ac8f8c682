// Package simrobot is the reference RobotInterface/ObstacleSensor pair: a
// UDP CSV loop, the direct continuation of the teacher's live.go/output.go
// UDP-to-UDP control loop, generalized from drone body-commands to robot
// pose/twist/obstacle framing.
//
// Wire format, one CSV line per UDP datagram on the inbound socket:
//
//	P,<t>,<x>,<y>,<phi>,<vx>,<vy>,<omega>      pose + global twist sample
//	O,<t>,<x1>,<y1>,<x2>,<y2>,...,<xn>,<yn>    obstacle point cloud (local frame)
//
// and on the outbound socket:
//
//	<vx>,<vy>,<omega>,<is_stop>,<is_nop>,<ptg_idx>,<alpha_idx>
package simrobot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"tpnav/tpnav"
)

// UDPRobot implements tpnav.RobotInterface and tpnav.ObstacleSensor over a
// pair of UDP sockets.
type UDPRobot struct {
	conn *net.UDPConn // outbound command socket

	store *robotStore

	watchdogMu sync.Mutex
	watchdog   *time.Timer

	events func(tpnav.NavEvent)
}

type robotStore struct {
	mu sync.RWMutex

	pose     tpnav.RobotPoseVel
	havePose bool

	obstacles     tpnav.PointCloudObstacles
	haveObstacles bool
}

func (s *robotStore) updatePose(pv tpnav.RobotPoseVel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pose = pv
	s.havePose = true
}

func (s *robotStore) snapshotPose() (tpnav.RobotPoseVel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pose, s.havePose
}

func (s *robotStore) updateObstacles(o tpnav.PointCloudObstacles) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obstacles = o
	s.haveObstacles = true
}

func (s *robotStore) snapshotObstacles() (tpnav.PointCloudObstacles, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.obstacles, s.haveObstacles
}

// New starts the inbound UDP listener and dials the outbound command
// socket, mirroring the teacher's startUDPListener + NewOutputSender pair.
func New(cfg tpnav.RobotConfig) (*UDPRobot, error) {
	if cfg.InboundAddr == "" {
		return nil, errors.New("simrobot: inbound_addr must be set")
	}
	if cfg.OutboundAddr == "" {
		return nil, errors.New("simrobot: outbound_addr must be set")
	}

	store := &robotStore{}
	if err := startInboundListener(cfg.InboundAddr, store); err != nil {
		return nil, err
	}

	outAddr, err := net.ResolveUDPAddr("udp", cfg.OutboundAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, outAddr)
	if err != nil {
		return nil, err
	}

	return &UDPRobot{conn: conn, store: store}, nil
}

// OnEvent installs a callback invoked synchronously from SendEvent; wire it
// to the status broadcaster or a log sink.
func (r *UDPRobot) OnEvent(fn func(tpnav.NavEvent)) { r.events = fn }

func startInboundListener(addr string, store *robotStore) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}

	go func() {
		buf := make([]byte, 8192)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				continue
			}
			line := strings.TrimSpace(string(buf[:n]))
			if line == "" {
				continue
			}
			switch line[0] {
			case 'P':
				if pv, err := parsePoseFrame(line); err == nil {
					store.updatePose(pv)
				}
			case 'O':
				if o, err := parseObstacleFrame(line); err == nil {
					store.updateObstacles(o)
				}
			}
		}
	}()

	return nil
}

func parsePoseFrame(line string) (tpnav.RobotPoseVel, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 8 {
		return tpnav.RobotPoseVel{}, fmt.Errorf("pose frame: expected 8 fields, got %d", len(parts))
	}
	vals := make([]float64, 7)
	for i, p := range parts[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return tpnav.RobotPoseVel{}, err
		}
		vals[i] = v
	}
	t, x, y, phi, vx, vy, omega := vals[0], vals[1], vals[2], vals[3], vals[4], vals[5], vals[6]
	return tpnav.RobotPoseVel{
		Pose:      tpnav.Pose2D{X: x, Y: y, Phi: phi},
		VelGlobal: tpnav.Twist2D{VX: vx, VY: vy, Omega: omega},
		Timestamp: time.Unix(0, int64(t*float64(time.Second))),
	}, nil
}

func parseObstacleFrame(line string) (tpnav.PointCloudObstacles, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 || (len(parts)-2)%2 != 0 {
		return tpnav.PointCloudObstacles{}, fmt.Errorf("obstacle frame: malformed field count %d", len(parts))
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return tpnav.PointCloudObstacles{}, err
	}
	coords := parts[2:]
	points := make([]tpnav.Pose2D, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		x, err := strconv.ParseFloat(strings.TrimSpace(coords[i]), 64)
		if err != nil {
			return tpnav.PointCloudObstacles{}, err
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(coords[i+1]), 64)
		if err != nil {
			return tpnav.PointCloudObstacles{}, err
		}
		points = append(points, tpnav.Pose2D{X: x, Y: y})
	}
	return tpnav.PointCloudObstacles{
		Points: points,
		At:     time.Unix(0, int64(t*float64(time.Second))),
	}, nil
}

// GetCurrentPoseAndSpeeds implements tpnav.RobotInterface.
func (r *UDPRobot) GetCurrentPoseAndSpeeds(_ context.Context) (tpnav.RobotPoseVel, error) {
	pv, ok := r.store.snapshotPose()
	if !ok {
		return tpnav.RobotPoseVel{}, errors.New("simrobot: no pose received yet")
	}
	return pv, nil
}

// SenseObstacles implements tpnav.ObstacleSensor.
func (r *UDPRobot) SenseObstacles(_ context.Context) (tpnav.ObstacleSet, error) {
	o, ok := r.store.snapshotObstacles()
	if !ok {
		return tpnav.PointCloudObstacles{At: time.Now()}, nil
	}
	return o, nil
}

// send writes "vx,vy,omega,is_stop,is_nop,ptg_idx,alpha_idx" as a CSV
// payload, the velocity-command analogue of the teacher's OutputSender.Send.
func (r *UDPRobot) send(cmd tpnav.VelCmd) bool {
	if r.conn == nil {
		return false
	}
	payload := fmt.Sprintf("%.4f,%.4f,%.4f,%t,%t,%d,%d",
		cmd.Linear.VX, cmd.Linear.VY, cmd.Linear.Omega, cmd.IsStop, cmd.IsNOP, cmd.PTGIndex, cmd.AlphaIndex)
	_, err := r.conn.Write([]byte(payload))
	return err == nil
}

// ChangeSpeeds implements tpnav.RobotInterface.
func (r *UDPRobot) ChangeSpeeds(_ context.Context, cmd tpnav.VelCmd) bool {
	r.resetWatchdog()
	return r.send(cmd)
}

// ChangeSpeedsNOP implements tpnav.RobotInterface: sends an is_nop marker
// frame with zero velocities, telling the receiving robot to keep
// executing whatever it was already doing.
func (r *UDPRobot) ChangeSpeedsNOP(_ context.Context) bool {
	r.resetWatchdog()
	return r.send(tpnav.VelCmd{IsNOP: true})
}

// Stop implements tpnav.RobotInterface.
func (r *UDPRobot) Stop(_ context.Context, emergency bool) bool {
	return r.send(tpnav.VelCmd{IsStop: true})
}

// EmergencyStopCmd implements tpnav.RobotInterface.
func (r *UDPRobot) EmergencyStopCmd() tpnav.VelCmd {
	return tpnav.VelCmd{IsStop: true}
}

// StartWatchdog implements tpnav.RobotInterface.
func (r *UDPRobot) StartWatchdog(timeout time.Duration) {
	r.watchdogMu.Lock()
	defer r.watchdogMu.Unlock()
	if r.watchdog != nil {
		r.watchdog.Stop()
	}
	r.watchdog = time.AfterFunc(timeout, func() {
		log.Printf("simrobot: watchdog expired, emergency stop")
		r.send(tpnav.VelCmd{IsStop: true})
	})
}

// StopWatchdog implements tpnav.RobotInterface.
func (r *UDPRobot) StopWatchdog() {
	r.watchdogMu.Lock()
	defer r.watchdogMu.Unlock()
	if r.watchdog != nil {
		r.watchdog.Stop()
		r.watchdog = nil
	}
}

func (r *UDPRobot) resetWatchdog() {
	r.watchdogMu.Lock()
	defer r.watchdogMu.Unlock()
	if r.watchdog != nil {
		r.watchdog.Reset(time.Second)
	}
}

// SendEvent implements tpnav.RobotInterface.
func (r *UDPRobot) SendEvent(ev tpnav.NavEvent) {
	if r.events != nil {
		r.events(ev)
		return
	}
	log.Printf("simrobot: event=%s session=%s waypoint=%d", ev.Kind, ev.SessionID, ev.WaypointIdx)
}

// GetNavigationTime implements tpnav.RobotInterface.
func (r *UDPRobot) GetNavigationTime() time.Time { return time.Now() }

// Close releases the outbound UDP socket.
func (r *UDPRobot) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

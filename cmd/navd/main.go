package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	_ "tpnav/holonomic"
	_ "tpnav/optimizer"
	_ "tpnav/ptg"
	"tpnav/simrobot"
	"tpnav/tpnav"
)

func main() {
	var configPath string
	var inboundAddr string
	var outboundAddr string
	var target string
	flag.StringVar(&configPath, "config", "config.json", "Path to JSON config.")
	flag.StringVar(&inboundAddr, "inbound-addr", "", "Override robot.inbound_addr (host:port).")
	flag.StringVar(&outboundAddr, "outbound-addr", "", "Override robot.outbound_addr (host:port).")
	flag.StringVar(&target, "target", "", "Force a single navigate() call to x,y,phi (radians) on startup.")
	flag.Parse()

	cfg, err := tpnav.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config %q: %v", configPath, err)
	}
	if inboundAddr != "" {
		cfg.Robot.InboundAddr = inboundAddr
	}
	if outboundAddr != "" {
		cfg.Robot.OutboundAddr = outboundAddr
	}

	robot, err := simrobot.New(cfg.Robot)
	if err != nil {
		log.Fatalf("start robot adapter: %v", err)
	}
	defer robot.Close()

	pipeline, err := tpnav.BuildPipeline(cfg, robot, tpnav.NewDelayModel(true))
	if err != nil {
		log.Fatalf("build pipeline: %v", err)
	}

	nav := tpnav.NewNavigator(robot, pipeline, cfg.Navigator)
	nav.OnStartNewNavigation = pipeline.ResetForNewNavigation

	broadcaster := tpnav.NewStatusBroadcaster(cfg.WS)
	broadcaster.Start()

	ctx := context.Background()

	if target != "" {
		t, err := parseTarget(target)
		if err != nil {
			log.Fatalf("invalid -target %q: %v", target, err)
		}
		if err := nav.Navigate(ctx, t); err != nil {
			log.Fatalf("navigate: %v", err)
		}
	}

	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()

	for range ticker.C {
		nav.Step(ctx)
		broadcaster.Broadcast(nav.Snapshot())
		if cfg.Log.Enabled {
			s := nav.Snapshot()
			log.Printf("state=%s pose=(%.3f,%.3f,%.3f) chosen=%d nop=%t",
				s.State, s.Pose.X, s.Pose.Y, s.Pose.Phi, s.ChosenIndex, s.ChosenIsNOP)
		}
	}
}

// parseTarget parses "x,y,phi" into an absolute NavTarget.
func parseTarget(s string) (tpnav.NavTarget, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return tpnav.NavTarget{}, fmt.Errorf("expected x,y,phi, got %q", s)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return tpnav.NavTarget{}, err
		}
		vals[i] = v
	}
	return tpnav.NavTarget{
		Target:          tpnav.Pose2D{X: vals[0], Y: vals[1], Phi: vals[2]},
		AllowedDistance: 0.10,
	}, nil
}

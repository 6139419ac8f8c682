package tpnav

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// RobotConfig points the C14 UDP adapter at the robot's inbound/outbound
// CSV frame sockets.
type RobotConfig struct {
	InboundAddr  string `json:"inbound_addr"`
	OutboundAddr string `json:"outbound_addr"`
}

// StrategyConfig selects the plug-in strategy class for one registry slot
// plus its raw JSON config block, mirroring
// CAbstractPTGBasedReactive::setHolonomicMethod's class-name+params pair.
type StrategyConfig struct {
	Class  string          `json:"class"`
	Params json.RawMessage `json:"params"`
}

// LogConfig controls console logging, same shape as the teacher's.
type LogConfig struct {
	Enabled bool `json:"enabled"`
}

// WSConfig controls the C15 status broadcaster's websocket listener.
type WSConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// AppConfig aggregates every configuration section LoadConfig validates.
type AppConfig struct {
	HzDecision float64 `json:"hz_decision"`

	Navigator NavigatorParams  `json:"navigator"`
	Pipeline  PipelineParams   `json:"pipeline"`
	Waypoints WaypointsParams  `json:"waypoints"`

	PTGs       []StrategyConfig `json:"ptgs"`
	Holonomic  StrategyConfig   `json:"holonomic"`
	Optimizer  StrategyConfig   `json:"optimizer"`

	Robot RobotConfig `json:"robot"`
	Log   LogConfig   `json:"log"`
	WS    WSConfig    `json:"ws"`
}

// LoadConfig reads and validates the JSON config from disk. Validation
// failures are surfaced here, not at navigate() time (SPEC_FULL.md §4.6):
// a missing required key or an unregistered strategy class name fails
// LoadConfig before any state transition out of IDLE is possible.
func LoadConfig(path string) (AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *AppConfig) applyDefaults() error {
	if c.HzDecision <= 0 {
		c.HzDecision = 10
	}
	if c.Navigator.AlarmNotApproachingTimeout <= 0 {
		c.Navigator.AlarmNotApproachingTimeout = DefaultNavigatorParams().AlarmNotApproachingTimeout
	}
	if c.Pipeline.TickPeriod <= 0 {
		d := DefaultPipelineParams()
		if c.Pipeline.SecureDistanceStart == 0 {
			c.Pipeline.SecureDistanceStart = d.SecureDistanceStart
		}
		if c.Pipeline.SecureDistanceEnd == 0 {
			c.Pipeline.SecureDistanceEnd = d.SecureDistanceEnd
		}
		if c.Pipeline.SpeedFilterTau == 0 {
			c.Pipeline.SpeedFilterTau = d.SpeedFilterTau
		}
		c.Pipeline.TickPeriod = d.TickPeriod
		if c.Pipeline.RobotAbsoluteSpeedLimits == (Twist2D{}) {
			c.Pipeline.RobotAbsoluteSpeedLimits = d.RobotAbsoluteSpeedLimits
		}
		if c.Pipeline.MaxDistForTimeBasedPrediction == 0 {
			c.Pipeline.MaxDistForTimeBasedPrediction = d.MaxDistForTimeBasedPrediction
		}
		if c.Pipeline.MaxDistPredictedActual == 0 {
			c.Pipeline.MaxDistPredictedActual = d.MaxDistPredictedActual
		}
	}
	if c.Waypoints.MinTimestepsConfirmSkipWaypoints == 0 {
		c.Waypoints.MinTimestepsConfirmSkipWaypoints = DefaultWaypointsParams().MinTimestepsConfirmSkipWaypoints
	}
	if c.Waypoints.MaxDistanceToAllowSkipWaypoint == 0 {
		c.Waypoints.MaxDistanceToAllowSkipWaypoint = DefaultWaypointsParams().MaxDistanceToAllowSkipWaypoint
	}
	return nil
}

// Validate checks the required keys and that every referenced strategy
// class name is registered, per SPEC_FULL.md §4.6.
func (c *AppConfig) Validate() error {
	if len(c.PTGs) == 0 {
		return &ConfigInvalidError{Key: "ptgs", Reason: "at least one PTG must be configured"}
	}
	for i, p := range c.PTGs {
		if p.Class == "" {
			return &ConfigInvalidError{Key: fmt.Sprintf("ptgs[%d].class", i), Reason: "must not be empty"}
		}
		if !ptgRegistered(p.Class) {
			return &UnknownStrategyClassError{Slot: "ptg", Name: p.Class}
		}
	}
	if c.Holonomic.Class == "" {
		return &ConfigInvalidError{Key: "holonomic.class", Reason: "must not be empty"}
	}
	if !holonomicRegistered(c.Holonomic.Class) {
		return &UnknownStrategyClassError{Slot: "holonomic", Name: c.Holonomic.Class}
	}
	if c.Optimizer.Class == "" {
		return &ConfigInvalidError{Key: "optimizer.class", Reason: "must not be empty"}
	}
	if !optimizerRegistered(c.Optimizer.Class) {
		return &UnknownStrategyClassError{Slot: "optimizer", Name: c.Optimizer.Class}
	}
	if c.Robot.InboundAddr == "" {
		return &ConfigInvalidError{Key: "robot.inbound_addr", Reason: "must not be empty"}
	}
	if c.Robot.OutboundAddr == "" {
		return &ConfigInvalidError{Key: "robot.outbound_addr", Reason: "must not be empty"}
	}
	return nil
}

func ptgRegistered(name string) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	_, ok := ptgRegistry[name]
	return ok
}

func holonomicRegistered(name string) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	_, ok := holonomicRegistry[name]
	return ok
}

func optimizerRegistered(name string) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	_, ok := optimizerRegistry[name]
	return ok
}

// BuildPipeline instantiates every PTG, the holonomic method and the
// optimiser named in cfg via the C10 registries, and assembles a Pipeline.
// Must be called after the desired strategy packages have been imported
// for side effect (their init() functions register with tpnav).
func BuildPipeline(cfg AppConfig, sensor ObstacleSensor, delay *DelayModel) (*Pipeline, error) {
	ptgs := make([]PTG, 0, len(cfg.PTGs))
	for _, p := range cfg.PTGs {
		ptg, err := NewPTG(p.Class, p.Params)
		if err != nil {
			return nil, err
		}
		ptgs = append(ptgs, ptg)
	}

	holos := make([]HolonomicMethod, len(ptgs))
	for i, ptg := range ptgs {
		h, err := NewHolonomic(cfg.Holonomic.Class, cfg.Holonomic.Params)
		if err != nil {
			return nil, err
		}
		h.SetAssociatedPTG(ptg)
		holos[i] = h
	}

	opt, err := NewOptimizer(cfg.Optimizer.Class, cfg.Optimizer.Params)
	if err != nil {
		return nil, err
	}

	p := NewPipeline(ptgs, holos, opt, sensor, delay, cfg.Pipeline)
	return p, nil
}

// TickInterval is the configured decision period as a time.Duration.
func (c AppConfig) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.HzDecision)
}

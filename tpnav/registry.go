package tpnav

import (
	"encoding/json"
	"fmt"
	"sync"
)

// PTGCtor builds a PTG instance from its raw JSON config block.
type PTGCtor func(json.RawMessage) (PTG, error)

// HolonomicCtor builds a HolonomicMethod instance from its raw JSON config block.
type HolonomicCtor func(json.RawMessage) (HolonomicMethod, error)

// OptimizerCtor builds an Optimizer instance from its raw JSON config block.
type OptimizerCtor func(json.RawMessage) (Optimizer, error)

var (
	registryMu sync.Mutex
	ptgRegistry        = map[string]PTGCtor{}
	holonomicRegistry  = map[string]HolonomicCtor{}
	optimizerRegistry  = map[string]OptimizerCtor{}
)

// RegisterPTG registers a PTG implementation under name, the Go analogue
// of MRPT's CAbstractHolonomicReactiveMethod::Create factory-by-class-name
// applied to PTGs: default implementations call this from an init().
func RegisterPTG(name string, ctor PTGCtor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	ptgRegistry[name] = ctor
}

// RegisterHolonomic registers a HolonomicMethod implementation under name.
func RegisterHolonomic(name string, ctor HolonomicCtor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	holonomicRegistry[name] = ctor
}

// RegisterOptimizer registers an Optimizer implementation under name.
func RegisterOptimizer(name string, ctor OptimizerCtor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	optimizerRegistry[name] = ctor
}

// NewPTG instantiates a registered PTG by name. Returns UnknownStrategyClass
// if no such name was ever registered (spec.md §7).
func NewPTG(name string, cfg json.RawMessage) (PTG, error) {
	registryMu.Lock()
	ctor, ok := ptgRegistry[name]
	registryMu.Unlock()
	if !ok {
		return nil, &UnknownStrategyClassError{Slot: "ptg", Name: name}
	}
	return ctor(cfg)
}

// NewHolonomic instantiates a registered HolonomicMethod by name.
func NewHolonomic(name string, cfg json.RawMessage) (HolonomicMethod, error) {
	registryMu.Lock()
	ctor, ok := holonomicRegistry[name]
	registryMu.Unlock()
	if !ok {
		return nil, &UnknownStrategyClassError{Slot: "holonomic", Name: name}
	}
	return ctor(cfg)
}

// NewOptimizer instantiates a registered Optimizer by name.
func NewOptimizer(name string, cfg json.RawMessage) (Optimizer, error) {
	registryMu.Lock()
	ctor, ok := optimizerRegistry[name]
	registryMu.Unlock()
	if !ok {
		return nil, &UnknownStrategyClassError{Slot: "optimizer", Name: name}
	}
	return ctor(cfg)
}

// UnknownStrategyClassError reports a config referencing an unregistered
// plug-in name (spec.md §7).
type UnknownStrategyClassError struct {
	Slot string
	Name string
}

func (e *UnknownStrategyClassError) Error() string {
	return fmt.Sprintf("tpnav: unknown %s strategy class %q", e.Slot, e.Name)
}

package tpnav

import (
	"time"

	"github.com/google/uuid"
)

// newSessionID mints a session identifier for one navigation, called on the
// first step() after an IDLE->NAVIGATING transition, and attached to every
// NavEvent raised during that session so an observer can correlate them
// (SPEC_FULL.md §3 NavEvent).
func newSessionID() string {
	return uuid.NewString()
}

func (n *Navigator) emit(kind NavEventKind, waypointIdx int) {
	if n.robot == nil {
		return
	}
	n.robot.SendEvent(NavEvent{
		Kind:        kind,
		SessionID:   n.sessionID,
		At:          n.now(),
		WaypointIdx: waypointIdx,
	})
}

func (n *Navigator) now() time.Time {
	if n.robot != nil {
		return n.robot.GetNavigationTime()
	}
	return time.Now()
}

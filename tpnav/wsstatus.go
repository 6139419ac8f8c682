package tpnav

import (
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// StatusMetrics exposes live tick values via expvar, the continuation of
// the teacher's VizMetrics (SPEC_FULL.md §4.8).
type StatusMetrics struct {
	state       *expvar.String
	chosenIndex *expvar.Int
	chosenIsNOP *expvar.String
	deltaSenseMs *expvar.Float
	deltaCmdMs   *expvar.Float
}

func newStatusMetrics() *StatusMetrics {
	m := &StatusMetrics{
		state:        expvar.NewString("tpnav_state"),
		chosenIndex:  expvar.NewInt("tpnav_chosen_index"),
		chosenIsNOP:  expvar.NewString("tpnav_chosen_is_nop"),
		deltaSenseMs: expvar.NewFloat("tpnav_delta_sense_ms"),
		deltaCmdMs:   expvar.NewFloat("tpnav_delta_cmd_ms"),
	}
	return m
}

func (m *StatusMetrics) update(s StatusSnapshot) {
	m.state.Set(s.State.String())
	m.chosenIndex.Set(int64(s.ChosenIndex))
	if s.ChosenIsNOP {
		m.chosenIsNOP.Set("true")
	} else {
		m.chosenIsNOP.Set("false")
	}
	m.deltaSenseMs.Set(float64(s.DeltaSense.Milliseconds()))
	m.deltaCmdMs.Set(float64(s.DeltaCmd.Milliseconds()))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusBroadcaster serves the C15 observer surface: an expvar endpoint
// (adapted from the teacher's StartViz) and a websocket fan-out of every
// StatusSnapshot recorded under the navigator's second lock.
type StatusBroadcaster struct {
	cfg     WSConfig
	metrics *StatusMetrics

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]chan []byte
}

// NewStatusBroadcaster constructs a broadcaster; returns nil if cfg
// disables it (mirrors StartViz's cfg.Enabled guard).
func NewStatusBroadcaster(cfg WSConfig) *StatusBroadcaster {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:7071"
	}
	return &StatusBroadcaster{
		cfg:     cfg,
		metrics: newStatusMetrics(),
		clients: map[*websocket.Conn]chan []byte{},
	}
}

// Start launches the HTTP server in the background; returns immediately.
func (b *StatusBroadcaster) Start() {
	if b == nil {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/status", b.handleWS)
	mux.Handle("/debug/vars", http.DefaultServeMux)
	server := &http.Server{Addr: b.cfg.Addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("tpnav: status broadcaster error: %v", err)
		}
	}()
}

func (b *StatusBroadcaster) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("tpnav: websocket upgrade failed: %v", err)
		return
	}
	out := make(chan []byte, 8)

	b.clientsMu.Lock()
	b.clients[conn] = out
	b.clientsMu.Unlock()

	go func() {
		defer func() {
			b.clientsMu.Lock()
			delete(b.clients, conn)
			b.clientsMu.Unlock()
			conn.Close()
		}()
		for msg := range out {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// Drain and discard anything the client sends; this is a publish-only
	// feed, but the read loop must run or the connection never notices a
	// client-initiated close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(out)
				return
			}
		}
	}()
}

// Broadcast publishes snapshot to every connected client and updates the
// expvar metrics. Call once per tick, after Navigator.Snapshot() returns
// (SPEC_FULL.md §4.8: "after step() returns").
func (b *StatusBroadcaster) Broadcast(snapshot StatusSnapshot) {
	if b == nil {
		return
	}
	b.metrics.update(snapshot)

	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("tpnav: status marshal failed: %v", err)
		return
	}

	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()
	for conn, ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// Slow client: drop the frame rather than block the tick.
			_ = conn
		}
	}
}

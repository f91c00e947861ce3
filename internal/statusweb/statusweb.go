// Package statusweb serves the small HTTP+WebSocket status surface
// groundstationd exposes to browser collaborators: a JSON broadcast of
// LinkState/Telemetry over a websocket, and a GET/POST /api/config
// endpoint over the persisted configuration record. Grounded directly
// on the teacher's webserver.go/uibroadcast.go — the same
// *http.Server/*websocket.Conn wiring, with the deadlock-detecting
// mutex upgraded from a plain one to github.com/sasha-s/go-deadlock,
// matching the teacher's own choice of that library for its socket
// list's mutex.
package statusweb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/net/websocket"

	"github.com/kabeerthockchom/xr872ctl/internal/autopilot"
	"github.com/kabeerthockchom/xr872ctl/internal/config"
	"github.com/kabeerthockchom/xr872ctl/internal/coordinator"
	"github.com/kabeerthockchom/xr872ctl/internal/position"
	"github.com/kabeerthockchom/xr872ctl/internal/telemetry"
)

// Broadcaster fans JSON status messages out to every connected
// websocket, grounded on uibroadcast.go's uibroadcaster.
type Broadcaster struct {
	mu       deadlock.Mutex
	sockets  []*websocket.Conn
	messages chan []byte
}

// NewBroadcaster starts the writer goroutine and returns a ready
// Broadcaster.
func NewBroadcaster() *Broadcaster {
	b := &Broadcaster{messages: make(chan []byte, 1024)}
	go b.writer()
	return b
}

// AddSocket registers a newly accepted websocket connection.
func (b *Broadcaster) AddSocket(conn *websocket.Conn) {
	b.mu.Lock()
	b.sockets = append(b.sockets, conn)
	b.mu.Unlock()
}

// SendJSON marshals v and queues it for every connected socket.
func (b *Broadcaster) SendJSON(v interface{}) {
	j, err := json.Marshal(v)
	if err != nil {
		log.Printf("statusweb: marshal failed: %v", err)
		return
	}
	b.messages <- j
}

func (b *Broadcaster) writer() {
	for msg := range b.messages {
		b.mu.Lock()
		live := make([]*websocket.Conn, 0, len(b.sockets))
		for _, sock := range b.sockets {
			_ = sock.SetWriteDeadline(time.Now().Add(time.Second))
			if _, err := sock.Write(msg); err == nil {
				live = append(live, sock)
			}
		}
		b.sockets = live
		b.mu.Unlock()
	}
}

// statusFrame is the JSON shape pushed over the websocket for every
// telemetry record and link-state transition.
type statusFrame struct {
	Kind       string            `json:"kind"`
	LinkState  string            `json:"link_state,omitempty"`
	Message    string            `json:"message,omitempty"`
	Telemetry  *telemetry.Record `json:"telemetry,omitempty"`
	HeadingDeg float64           `json:"heading_deg,omitempty"`
	Position   *position.Position `json:"position,omitempty"`
	Autopilot  *autopilot.Status `json:"autopilot,omitempty"`
}

// Server bundles the HTTP server and its broadcaster around one
// Coordinator. Grounded on the teacher's startWebServer, with
// pm/fm's trim-press and flap endpoints replaced by this domain's
// coordinator API.
type Server struct {
	http        *http.Server
	broadcaster *Broadcaster
	coord       *coordinator.Coordinator
	cfgPath     string
}

// New wires a Server around coord, subscribing to its telemetry and
// status event streams so every event reaches connected browsers.
func New(coord *coordinator.Coordinator, cfgPath, addr string) *Server {
	s := &Server{broadcaster: NewBroadcaster(), coord: coord, cfgPath: cfgPath}

	coord.OnTelemetry(func(rec telemetry.Record) {
		pos := coord.Position()
		s.broadcaster.SendJSON(statusFrame{Kind: "telemetry", Telemetry: &rec, HeadingDeg: coord.Heading(), Position: &pos})
	})
	coord.OnStatus(func(ev coordinator.StatusEvent) {
		if ev.IsLink {
			s.broadcaster.SendJSON(statusFrame{Kind: "link_state", LinkState: ev.LinkState.String()})
			return
		}
		s.broadcaster.SendJSON(statusFrame{Kind: "status", Message: ev.Message})
	})
	coord.OnAutopilotEvent(func(ev autopilot.Event) {
		status := coord.AutopilotStatus()
		s.broadcaster.SendJSON(statusFrame{Kind: "autopilot", Autopilot: &status})
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.Handle("/status", websocket.Handler(s.handleStatusSocket))

	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background, mirroring the teacher's
// go func() { srv.ListenAndServe() }() pattern.
func (s *Server) Start() {
	go func() {
		log.Printf("statusweb: listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("statusweb: server error: %v", err)
		}
	}()
}

// Shutdown gracefully stops the HTTP server within a 2s deadline,
// matching the teacher's srv.Shutdown(ctx) in main().
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		LinkState string `json:"link_state"`
		Autopilot autopilot.Status `json:"autopilot"`
	}{LinkState: s.coord.LinkState().String(), Autopilot: s.coord.AutopilotStatus()})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := config.Load(s.cfgPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cfg)
	case http.MethodPost:
		var cfg config.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
			return
		}
		if err := cfg.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := config.Save(s.cfgPath, cfg); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStatusSocket(conn *websocket.Conn) {
	s.broadcaster.AddSocket(conn)
	buf := make([]byte, 256)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

package server

import (
	"context"
	"embed"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"detmap-go/internal/config"
)

//go:embed web/*
var webFS embed.FS

// Command is a control message from a websocket client.
type Command struct {
	Action     string  `json:"action"`
	Mode       string  `json:"mode,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
	ShowLabels bool    `json:"show_labels,omitempty"`
}

// Hooks wires the server to the rest of the service. Nil hooks degrade to
// empty responses rather than panics.
type Hooks struct {
	Status      func() map[string]any
	Config      func() map[string]any
	Snapshot    func() any
	Heatmap     func() ([]byte, error)
	Analyze     func(ctx context.Context, media []byte) (any, error)
	Command     func(cmd Command) error
	Metrics     http.Handler
	ClientDelta func(delta int)
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.AppConfig
	hooks    Hooks
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingEvery      = (pongWait * 9) / 10
	maxAnalyzeBody = 16 << 20
)

func Run(ctx context.Context, cfg config.AppConfig, messages <-chan any, hooks Hooks) error {
	srv := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
		cfg:     cfg,
		hooks:   hooks,
	}

	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/config", srv.handleConfig)
	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/heatmap.png", srv.handleHeatmap)
	mux.HandleFunc("/analyze", srv.handleAnalyze)
	if hooks.Metrics != nil {
		mux.Handle("/metrics", hooks.Metrics)
	}

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go srv.broadcast(ctx, messages)

	return httpServer.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()
	if s.hooks.ClientDelta != nil {
		s.hooks.ClientDelta(1)
	}

	if s.hooks.Config != nil {
		if cfg := s.hooks.Config(); cfg != nil {
			_ = s.writeJSON(conn, writeMu, cfg)
		}
	}

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			s.handleClientMessage(conn, writeMu, payload)
		}
	}()
}

func (s *Server) handleClientMessage(conn *websocket.Conn, writeMu *sync.Mutex, payload []byte) {
	var request struct {
		Type string `json:"type"`
		Command
	}
	if err := json.Unmarshal(payload, &request); err != nil {
		return
	}
	switch request.Type {
	case "snapshot_request":
		if s.hooks.Snapshot == nil {
			return
		}
		if snapshot := s.hooks.Snapshot(); snapshot != nil {
			_ = s.writeJSON(conn, writeMu, snapshot)
		}
	case "command":
		if s.hooks.Command == nil {
			return
		}
		if err := s.hooks.Command(request.Command); err != nil {
			_ = s.writeJSON(conn, writeMu, map[string]any{
				"type":  "error",
				"error": err.Error(),
			})
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{
		"port":        s.cfg.Port,
		"threshold":   s.cfg.Threshold,
		"show_labels": s.cfg.ShowLabels,
		"mode":        s.cfg.Mode,
	}
	if s.hooks.Config != nil {
		if cfg := s.hooks.Config(); cfg != nil {
			payload = cfg
		}
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.hooks.Status != nil {
		payload = s.hooks.Status()
	}
	payload["ws_clients"] = s.clientCount()
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, _ *http.Request) {
	if s.hooks.Heatmap == nil {
		http.Error(w, "heat-map unavailable", http.StatusNotFound)
		return
	}
	data, err := s.hooks.Heatmap()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.hooks.Analyze == nil {
		http.Error(w, "analyze unavailable", http.StatusNotFound)
		return
	}
	media, err := io.ReadAll(io.LimitReader(r.Body, maxAnalyzeBody))
	if err != nil || len(media) == 0 {
		http.Error(w, "missing media payload", http.StatusBadRequest)
		return
	}
	result, err := s.hooks.Analyze(r.Context(), media)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				continue
			}
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	_, known := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
	if known && s.hooks.ClientDelta != nil {
		s.hooks.ClientDelta(-1)
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

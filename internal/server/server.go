package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"image/jpeg"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"topic-preview-go/internal/config"
	"topic-preview-go/internal/decode"
	"topic-preview-go/internal/preview"
)

//go:embed web/*
var webFS embed.FS

// Server mirrors the preview to browsers. It is a preview.Renderer: every
// frame is JPEG-encoded once and broadcast to all websocket clients.
type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.AppConfig
	statusFn func() map[string]any
	log      *zap.Logger
	messages chan outbound

	frameMu sync.Mutex
	latest  []byte
	state   preview.SurfaceState
	dropped uint64
}

type outbound struct {
	messageType int
	payload     []byte
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

func New(cfg config.AppConfig, statusFn func() map[string]any, log *zap.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		cfg:      cfg,
		statusFn: statusFn,
		log:      log,
		messages: make(chan outbound, 4),
	}
}

// Run serves HTTP until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              s.cfg.Web.Addr,
		Handler:           s.routes(sub),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go s.broadcast(ctx)

	s.log.Info("web mirror listening", zap.String("addr", s.cfg.Web.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes(static fs.FS) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/frame.jpg", s.handleFrame)
	return mux
}

// --- preview.Renderer ---

func (s *Server) SetImage(_ string, bmp *decode.Bitmap) error {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)
	if err := jpeg.Encode(&buf, bmp.RGBA(), &jpeg.Options{Quality: s.cfg.Web.JPEGQuality}); err != nil {
		return err
	}
	frame := buf.Bytes()

	s.frameMu.Lock()
	s.latest = frame
	s.frameMu.Unlock()

	s.enqueue(outbound{messageType: websocket.BinaryMessage, payload: frame})
	return nil
}

func (s *Server) Resize(width, height int) error {
	s.frameMu.Lock()
	s.state.Width, s.state.Height = width, height
	s.frameMu.Unlock()
	return s.pushConfig()
}

func (s *Server) Show() error {
	s.frameMu.Lock()
	s.state.Visible = true
	s.frameMu.Unlock()
	return s.pushConfig()
}

func (s *Server) State() preview.SurfaceState {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.state
}

func (s *Server) pushConfig() error {
	payload, err := json.Marshal(s.configPayload())
	if err != nil {
		return err
	}
	s.enqueue(outbound{messageType: websocket.TextMessage, payload: payload})
	return nil
}

// enqueue drops the message when the broadcaster is behind; a newer frame
// always follows.
func (s *Server) enqueue(msg outbound) {
	select {
	case s.messages <- msg:
	default:
		s.frameMu.Lock()
		s.dropped++
		s.frameMu.Unlock()
	}
}

func (s *Server) configPayload() map[string]any {
	state := s.State()
	return map[string]any{
		"type":      "config",
		"topic":     s.cfg.Topic,
		"msg_type":  s.cfg.MessageType,
		"transport": s.cfg.Transport.Kind,
		"endpoint":  s.cfg.Transport.Endpoint,
		"width":     state.Width,
		"height":    state.Height,
		"visible":   state.Visible,
	}
}

// --- HTTP ---

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()

	_ = s.writeJSON(conn, writeMu, s.configPayload())
	s.frameMu.Lock()
	latest := s.latest
	s.frameMu.Unlock()
	if latest != nil {
		_ = s.writeMessage(conn, writeMu, websocket.BinaryMessage, latest)
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
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.configPayload())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	s.frameMu.Lock()
	payload["ws_dropped"] = s.dropped
	s.frameMu.Unlock()
	payload["ws_clients"] = s.clientCount()
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	s.frameMu.Lock()
	frame := s.latest
	s.frameMu.Unlock()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(frame)
}

func (s *Server) broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.messages:
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, message.messageType, message.payload); err != nil {
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
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
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

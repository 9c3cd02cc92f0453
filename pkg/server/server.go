package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ankan-coder/chat-app/pkg/protocol"
	"github.com/ankan-coder/chat-app/pkg/store"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

// Server is the chat relay: it owns the session registry, presence
// records, conversation history, and the liveness monitor, and routes
// every inbound frame.
type Server struct {
	config     ServerConfig
	users      *store.UserStore
	convs      *store.ConversationStore
	registry   *Registry
	metrics    *Metrics
	metricsReg *prometheus.Registry
	identity   *Identity
	upgrader   websocket.Upgrader

	httpServer    *http.Server
	metricsServer *http.Server
	listener      net.Listener
	shutdown      chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
	startTime     time.Time
}

// NewServer creates a new server instance. The server identity key pair
// is generated here, once per process.
func NewServer(config ServerConfig) (*Server, error) {
	if err := initLoggers(); err != nil {
		return nil, fmt.Errorf("failed to initialize loggers: %w", err)
	}

	identity, err := NewIdentity()
	if err != nil {
		return nil, err
	}

	// Each server instance registers into its own registry so multiple
	// instances can coexist in one process.
	metricsReg := prometheus.NewRegistry()
	metrics := NewMetrics(metricsReg)

	return &Server{
		config:     config,
		users:      store.NewUserStore(),
		convs:      store.NewConversationStore(),
		registry:   NewRegistry(metrics),
		metrics:    metrics,
		metricsReg: metricsReg,
		identity:   identity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   4096,
			EnableCompression: true,
			// The frontend is served from this same origin, but the
			// relay has no origin-based auth model; usernames are the
			// only identity.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
	}, nil
}

// initLoggers sets up error and debug loggers once per process. Debug
// output is discarded unless EnableDebugLogging is called.
func initLoggers() error {
	if errorLog == nil {
		errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	}
	if debugLog == nil {
		debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
	}
	return nil
}

// EnableDebugLogging routes debug output to stderr.
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
}

// Start begins listening on the public HTTP port and starts the
// liveness monitor and, if configured, the internal metrics server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	if s.config.StaticDir != "" {
		if abs, err := filepath.Abs(s.config.StaticDir); err == nil {
			mux.Handle("/", http.FileServer(http.Dir(abs)))
		}
	}

	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("Server is running on port %d", s.config.HTTPPort)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorLog.Printf("HTTP server error: %v", err)
		}
	}()

	if s.config.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(s.metricsReg, promhttp.HandlerOpts{}))
		metricsMux.HandleFunc("/health", s.HealthHandler)
		s.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler: metricsMux,
		}
		go func() {
			log.Printf("Metrics server listening on :%d (/metrics, /health) - INTERNAL ONLY", s.config.MetricsPort)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errorLog.Printf("Metrics server error: %v", err)
			}
		}()
	}

	s.wg.Add(1)
	go s.pingLoop()

	return nil
}

// Addr returns the public listener address, useful when the configured
// port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	log.Println("Graceful shutdown initiated...")

	s.closeOnce.Do(func() { close(s.shutdown) })

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errorLog.Printf("HTTP shutdown error: %v", err)
		}
	}
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.metricsServer.Shutdown(ctx)
	}

	log.Println("Closing all client sessions...")
	s.registry.CloseAll()

	s.wg.Wait()
	log.Println("Graceful shutdown complete")
	return nil
}

// HealthHandler reports process liveness and basic counters.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","sessions":%d,"uptime_seconds":%d}`,
		s.registry.Count(), int64(time.Since(s.startTime).Seconds()))
}

// HandleWebSocket upgrades an HTTP request and runs the connection's
// read loop until the peer goes away.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		errorLog.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sc := NewSafeConn(conn)
	sc.SetReadLimit(s.config.MaxPayloadBytes)

	sess := s.registry.Add(sc)
	debugLog.Printf("Session %d: new connection from %s", sess.ID, sess.RemoteAddr)

	// Probe replies refresh both the liveness flag and last-seen, so a
	// quiet-but-responsive user never looks stale.
	sc.SetPongHandler(func(string) error {
		sess.MarkAlive()
		if username := sess.Username(); username != "" {
			s.users.Touch(username)
		}
		return nil
	})

	s.wg.Add(1)
	go s.readLoop(sess)
}

// readLoop processes messages for an established connection. Transport
// errors and peer closes route through the same cleanup path.
func (s *Server) readLoop(sess *Session) {
	defer s.wg.Done()
	defer s.cleanupSession(sess)

	for {
		msgType, data, err := sess.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				debugLog.Printf("Session %d: read error: %v", sess.ID, err)
			} else {
				debugLog.Printf("Session %d: client disconnected", sess.ID)
			}
			return
		}

		// Any inbound traffic counts as a probe answer.
		sess.MarkAlive()

		switch msgType {
		case websocket.BinaryMessage:
			s.handleBinary(sess, data)
		case websocket.TextMessage:
			s.handleFrame(sess, data)
		default:
			// Control frames are handled by gorilla internally.
		}
	}
}

// cleanupSession runs once per connection, whether it ended by close,
// error, or eviction. The user record survives; only presence and the
// connection mapping change.
func (s *Server) cleanupSession(sess *Session) {
	sess.Conn.Close()

	username, wasBound := s.registry.Unbind(sess)
	if !wasBound {
		return
	}

	s.users.SetOffline(username)
	log.Printf("%s disconnected.", username)

	s.broadcastFrame(protocol.NewSystem(fmt.Sprintf("%s has left the chat.", username)), protocol.TypeSystem)
	s.broadcastUserList()
}

// pingLoop is the liveness monitor: every tick it evicts connections
// whose previous probe went unanswered, then probes the rest. This is
// the only mechanism that catches half-open connections where no close
// frame ever arrives.
func (s *Server) pingLoop() {
	defer s.wg.Done()

	interval := time.Duration(s.config.PingIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.probeSessions()
		}
	}
}

// probeSessions sweeps all sessions once.
func (s *Server) probeSessions() {
	for _, sess := range s.registry.All() {
		// Swap clears the flag; the next sweep evicts unless traffic
		// or a pong sets it again in the meantime.
		if !sess.alive.Swap(false) {
			s.evictStale(sess)
			continue
		}
		if err := sess.Conn.WritePing(); err != nil {
			debugLog.Printf("Session %d: ping failed: %v", sess.ID, err)
		}
	}
}

// evictStale force-terminates a connection that failed its liveness
// probe, announcing the departure if the session was registered.
func (s *Server) evictStale(sess *Session) {
	s.metrics.RecordPingEviction()

	username, wasBound := s.registry.Unbind(sess)
	if wasBound {
		s.users.SetOffline(username)
		log.Printf("%s disconnected (ping timeout).", username)
		s.broadcastFrame(protocol.NewSystem(fmt.Sprintf("%s has left the chat.", username)), protocol.TypeSystem)
		s.broadcastUserList()
	}

	sess.Conn.Close()
}

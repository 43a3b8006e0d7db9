package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/errorsx"
	"github.com/harunnryd/avatarchat/pkg/logging"
	"github.com/harunnryd/avatarchat/pkg/transports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	writeTimeout   = 5 * time.Second
	maxInboundSize = 4096
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	HealthPath     string   `mapstructure:"health_path"`
	MetricsPath    string   `mapstructure:"metrics_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SendBuffer     int      `mapstructure:"send_buffer"`
	CommandBuffer  int      `mapstructure:"command_buffer"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/healthz"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = 64
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// Transport serves UI clients over WebSocket. Every client receives every
// notification; any client may send commands.
type Transport struct {
	cfg      Config
	log      *slog.Logger
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	router   chi.Router

	server *http.Server
	addr   atomic.Value

	cmdMu   sync.RWMutex
	cmdCh   chan transports.Command
	stopped bool

	mu       sync.Mutex
	sessions map[string]*session
	snapshot func() conversation.PhaseChanged
	last     *conversation.PhaseChanged

	draining atomic.Bool
}

// New builds the transport. A nil gatherer disables the metrics route.
func New(cfg Config, gatherer prometheus.Gatherer, logger *slog.Logger) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg:      cfg,
		log:      logging.NewComponentLogger(logger, "transport_ws"),
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		cmdCh:    make(chan transports.Command, cfg.CommandBuffer),
		sessions: make(map[string]*session),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	t.router = t.newRouter()
	return t
}

func (t *Transport) Name() string { return "websocket" }

func (t *Transport) Commands() <-chan transports.Command { return t.cmdCh }

// Handler exposes the router, mostly for tests.
func (t *Transport) Handler() http.Handler { return t.router }

func (t *Transport) ReadyFields() map[string]any {
	addr, _ := t.addr.Load().(string)
	if addr == "" {
		addr = t.cfg.ServerAddr
	}
	fields := map[string]any{
		"listen_addr": addr,
		"ws_path":     t.cfg.WebsocketPath,
	}
	if t.gatherer != nil {
		fields["metrics_path"] = t.cfg.MetricsPath
	}
	return fields
}

// SetSnapshot installs the source of the greeting sent to new clients.
func (t *Transport) SetSnapshot(fn func() conversation.PhaseChanged) {
	t.mu.Lock()
	t.snapshot = fn
	t.mu.Unlock()
}

func (t *Transport) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(t.cfg.WebsocketPath, t.serveWS)
	r.Get(t.cfg.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		if t.draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if t.gatherer != nil {
		r.Method(http.MethodGet, t.cfg.MetricsPath, promhttp.HandlerFor(t.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ln, err := net.Listen("tcp", t.cfg.ServerAddr)
	if err != nil {
		return errorsx.WrapOp(err, errorsx.ReasonConfig, "ws.listen")
	}
	t.addr.Store(ln.Addr().String())
	t.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           t.router,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("ws_transport_server_error", "error", err.Error())
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	if !t.draining.CompareAndSwap(false, true) {
		return nil
	}
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for _, sess := range t.sessions {
		_ = sess.close()
	}
	t.sessions = make(map[string]*session)
	t.mu.Unlock()

	t.cmdMu.Lock()
	t.stopped = true
	close(t.cmdCh)
	t.cmdMu.Unlock()
	return nil
}

// OnNotification broadcasts n to every connected client. It never blocks;
// a client whose buffer is full misses the message.
func (t *Transport) OnNotification(n conversation.Notification) {
	msg, ok := encodeNotification(n)
	if !ok {
		return
	}
	if pc, isPhase := n.(conversation.PhaseChanged); isPhase {
		t.mu.Lock()
		t.last = &pc
		t.mu.Unlock()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.log.Warn("ws_encode_failed", "type", msg.Type, "error", err.Error(), "reason_code", string(errorsx.ReasonTransportSend))
		return
	}
	t.mu.Lock()
	list := make([]*session, 0, len(t.sessions))
	for _, sess := range t.sessions {
		list = append(list, sess)
	}
	t.mu.Unlock()
	for _, sess := range list {
		if !sess.enqueue(b) {
			t.log.Debug("ws_client_message_dropped", "client_id", sess.id, "type", msg.Type)
		}
	}
}

func (t *Transport) serveWS(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxInboundSize)
	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan []byte, t.cfg.SendBuffer),
	}
	go sess.loop()
	if !t.attach(sess) {
		_ = sess.close()
		t.log.Debug("ws_client_rejected_draining", "client_id", sess.id)
		return
	}
	t.log.Info("ws_client_connected", "client_id", sess.id, "remote_addr", r.RemoteAddr)
	t.greet(sess)

	defer func() {
		t.detach(sess.id)
		_ = sess.close()
		t.log.Info("ws_client_disconnected", "client_id", sess.id)
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := decodeCommand(data)
		if err != nil {
			t.log.Warn("ws_command_rejected", "client_id", sess.id, "error", err.Error(), "reason_code", string(errorsx.Reason(err)))
			if b, mErr := json.Marshal(Message{Type: typeError, Error: err.Error()}); mErr == nil {
				sess.enqueue(b)
			}
			continue
		}
		cmd.ClientID = sess.id
		if !t.emit(cmd) {
			t.log.Warn("ws_command_dropped", "client_id", sess.id, "type", string(cmd.Type))
		}
	}
}

func (t *Transport) greet(sess *session) {
	t.mu.Lock()
	fn, last := t.snapshot, t.last
	t.mu.Unlock()
	var pc conversation.PhaseChanged
	switch {
	case fn != nil:
		pc = fn()
	case last != nil:
		pc = *last
	}
	b, err := json.Marshal(phaseMessage(typeSnapshot, pc))
	if err != nil {
		return
	}
	sess.enqueue(b)
}

func (t *Transport) emit(cmd transports.Command) bool {
	t.cmdMu.RLock()
	defer t.cmdMu.RUnlock()
	if t.stopped {
		return false
	}
	select {
	case t.cmdCh <- cmd:
		return true
	default:
		return false
	}
}

// attach registers sess unless Stop has begun; Stop flips draining before
// it sweeps the session map.
func (t *Transport) attach(sess *session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draining.Load() {
		return false
	}
	t.sessions[sess.id] = sess
	return true
}

func (t *Transport) detach(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

// Clients returns the number of connected clients.
func (t *Transport) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range t.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

func decodeCommand(data []byte) (transports.Command, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return transports.Command{}, errorsx.WrapOp(err, errorsx.ReasonTransportDecode, "ws.decode")
	}
	ct, ok := transports.ParseCommandType(in.Type)
	if !ok {
		return transports.Command{}, errorsx.WrapOp(errors.New("unknown command "+in.Type), errorsx.ReasonTransportDecode, "ws.decode")
	}
	cmd := transports.Command{Type: ct}
	if ct == transports.CommandSay {
		cmd.Text = strings.TrimSpace(in.Text)
		if cmd.Text == "" {
			return transports.Command{}, errorsx.WrapOp(errors.New("say requires text"), errorsx.ReasonTransportDecode, "ws.decode")
		}
	}
	return cmd, nil
}

type session struct {
	id     string
	conn   *websocket.Conn
	sendCh chan []byte
	mu     sync.Mutex
	closed bool
}

func (s *session) enqueue(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.sendCh <- b:
		return true
	default:
		return false
	}
}

func (s *session) loop() {
	for msg := range s.sendCh {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = s.conn.Close()
		}
	}
}

func (s *session) close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.sendCh)
	}
	s.mu.Unlock()
	return s.conn.Close()
}

var _ transports.Transport = (*Transport)(nil)

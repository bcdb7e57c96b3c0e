// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package websocket

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/pulse/internal/auth"
	"github.com/tomtom215/pulse/internal/cache"
	"github.com/tomtom215/pulse/internal/events"
	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/metrics"
)

// Config configures the socket gateway.
type Config struct {
	// SendQueueSize bounds each session's outbound queue.
	SendQueueSize int

	// AuthTimeout is how long a new socket has to send its auth frame.
	AuthTimeout time.Duration

	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64

	// InboundRate and InboundBurst limit client frames per session.
	InboundRate  float64
	InboundBurst int

	// AllowedOrigins restricts the upgrade Origin header; empty allows any.
	AllowedOrigins []string
}

// DefaultConfig returns gateway defaults.
func DefaultConfig() Config {
	return Config{
		SendQueueSize:  256,
		AuthTimeout:    10 * time.Second,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
		InboundRate:    10,
		InboundBurst:   20,
	}
}

// PingPeriod is the keepalive interval, shorter than PongWait.
func (c Config) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// PresenceMarker records user activity.
type PresenceMarker interface {
	MarkActive(userID string, ts time.Time)
}

// Gateway pushes notifications to connected sessions. It is registered with
// the ingestion gateway under the name "fanout".
type Gateway struct {
	cfg      Config
	sessions *SessionManager
	verifier TokenVerifier
	presence PresenceMarker
	upgrader websocket.Upgrader
	seen     *cache.LRUCache
	now      func() time.Time
}

// NewGateway creates a gateway over sessions. presence may be nil.
func NewGateway(cfg Config, sessions *SessionManager, verifier TokenVerifier, presence PresenceMarker) *Gateway {
	def := DefaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.InboundRate <= 0 {
		cfg.InboundRate = def.InboundRate
	}
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = def.InboundBurst
	}

	g := &Gateway{
		cfg:      cfg,
		sessions: sessions,
		verifier: verifier,
		presence: presence,
		seen:     cache.NewLRUCache(100000, time.Hour),
		now:      time.Now,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// Sessions returns the session registry.
func (g *Gateway) Sessions() *SessionManager {
	return g.sessions
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range g.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// OnConnect verifies token and registers a session whose queue starts with the
// welcome frame. An invalid token yields an *auth.AuthError and nothing is
// registered. A session of the same user already registered under sessionID
// is closed and replaced; a session id held by another user is rejected.
func (g *Gateway) OnConnect(sessionID, token string) (*Session, error) {
	claims, err := g.verifier.Verify(token)
	if err != nil {
		metrics.WSAuthFailures.Inc()
		return nil, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s := NewSession(sessionID, claims.User(), g.cfg.SendQueueSize)
	s.Enqueue(NewFrame(FrameWelcome, WelcomePayload{SessionID: s.ID, UserID: s.UserID}, g.now()))
	stale, err := g.sessions.Add(s)
	if err != nil {
		metrics.WSAuthFailures.Inc()
		logging.Warn().
			Str("session_id", sessionID).
			Str("user_id", s.UserID).
			Msg("Rejected session id held by another user")
		return nil, &auth.AuthError{Reason: "session id in use", Err: err}
	}
	if stale != nil {
		stale.Close(CloseReplaced, "session replaced")
		logging.Debug().Str("session_id", sessionID).Str("user_id", stale.UserID).Msg("Replaced stale session")
	}
	metrics.WSConnections.Set(float64(g.sessions.Count()))

	logging.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Msg("Websocket session connected")
	return s, nil
}

// OnDisconnect removes the session with sessionID and marks its user active.
func (g *Gateway) OnDisconnect(sessionID, reason string) {
	s := g.sessions.Remove(sessionID)
	if s == nil {
		return
	}
	g.afterDisconnect(s, reason)
}

// disconnect is called by a socket's read pump. It leaves a session that
// has already been replaced by a reconnect alone.
func (g *Gateway) disconnect(s *Session, reason string) {
	s.Close(websocket.CloseNormalClosure, reason)
	if !g.sessions.RemoveSession(s) {
		return
	}
	g.afterDisconnect(s, reason)
}

func (g *Gateway) afterDisconnect(s *Session, reason string) {
	s.Close(websocket.CloseNormalClosure, reason)
	if g.presence != nil {
		g.presence.MarkActive(s.UserID, g.now())
	}
	metrics.WSConnections.Set(float64(g.sessions.Count()))

	logging.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Str("reason", reason).
		Msg("Websocket session disconnected")
}

// Deliver queues f to every live session of each recipient. Offline users are
// skipped. It returns the number of sessions the frame was queued to.
func (g *Gateway) Deliver(f Frame, recipients []string) int {
	delivered := 0
	for _, user := range recipients {
		for _, s := range g.sessions.SessionsFor(user) {
			ok := s.Enqueue(f)
			metrics.RecordFrame(ok)
			if !ok {
				logging.Debug().Str("session_id", s.ID).Str("type", f.Type).Msg("Send queue full, frame dropped")
				continue
			}
			delivered++
		}
	}
	return delivered
}

// BroadcastGroup records the membership of groupID and sends a group_created
// frame to every participant.
func (g *Gateway) BroadcastGroup(groupID string, participants []string, payload events.GroupCreatedPayload) int {
	g.sessions.SetGroupMembers(groupID, participants)
	for _, user := range participants {
		for _, s := range g.sessions.SessionsFor(user) {
			s.Subscribe(GroupChannel(groupID))
		}
	}
	return g.Deliver(NewFrame(FrameGroupCreated, payload, g.now()), participants)
}

// UserBecameActive tells the members of every group userID belongs to that
// the user is active again.
func (g *Gateway) UserBecameActive(userID string, at time.Time) {
	seen := map[string]struct{}{userID: {}}
	var recipients []string
	for _, groupID := range g.sessions.GroupsOf(userID) {
		for _, member := range g.sessions.GroupMembers(groupID) {
			if _, dup := seen[member]; dup {
				continue
			}
			seen[member] = struct{}{}
			recipients = append(recipients, member)
		}
	}
	if len(recipients) == 0 {
		return
	}
	g.Deliver(NewFrame(FrameUserActive, UserActiveNotice{UserID: userID, LastActiveAt: at.UnixMilli()}, g.now()), recipients)
}

// Handle is the ingestion handler. Each (partition, offset) is fanned out at
// most once.
func (g *Gateway) Handle(_ context.Context, ev events.ActivityEvent) error {
	switch ev.Type {
	case events.TypeGroupCreated, events.TypeLiked, events.TypeCommented, events.TypePostCreated:
	default:
		return nil
	}
	if g.seen.IsDuplicate(strconv.Itoa(int(ev.Partition)) + ":" + strconv.FormatInt(ev.Offset, 10)) {
		return nil
	}

	switch ev.Type {
	case events.TypeGroupCreated:
		p, _ := ev.GroupCreated()
		g.BroadcastGroup(p.ID, p.Participants, p)

	case events.TypeLiked, events.TypeCommented:
		p, _ := ev.Reaction()
		if p.RecipientID == "" || p.RecipientID == ev.ActorID {
			return nil
		}
		notice := ReactionNotice{ActorID: ev.ActorID, PostID: p.PostID, CommentID: p.CommentID, Text: p.Text}
		g.Deliver(Frame{Type: string(ev.Type), Payload: notice, TS: ev.Millis()}, []string{p.RecipientID})

	case events.TypePostCreated:
		p, _ := ev.PostCreated()
		var audience []string
		for _, u := range p.Audience {
			if u != ev.ActorID {
				audience = append(audience, u)
			}
		}
		if len(audience) == 0 {
			return nil
		}
		notice := PostNotice{ActorID: ev.ActorID, PostID: p.PostID, Content: p.Content}
		g.Deliver(Frame{Type: FramePostCreated, Payload: notice, TS: ev.Millis()}, audience)
	}
	return nil
}

// Serve blocks until ctx is canceled, then closes every session with
// 1001 going away. It implements suture.Service.
func (g *Gateway) Serve(ctx context.Context) error {
	<-ctx.Done()
	closed := g.sessions.CloseAll(CloseShutdown, "server shutting down")
	metrics.WSConnections.Set(0)

	logging.Info().
		Str("component", "websocket-gateway").
		Int("sessions_closed", closed).
		Msg("Websocket gateway stopped")
	return nil
}

// String implements fmt.Stringer for suture logging.
func (g *Gateway) String() string {
	return "websocket-gateway"
}

// ServeWS upgrades the request and runs the auth handshake: the first frame
// must be an AuthFrame received within AuthTimeout.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s, err := g.authenticate(conn)
	if err != nil {
		logging.Info().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Websocket authentication failed")
		msg := websocket.FormatCloseMessage(CloseUnauthorized, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.cfg.WriteWait))
		_ = conn.Close()
		return
	}

	newClient(g, s, conn).start()
}

func (g *Gateway) authenticate(conn *websocket.Conn) (*Session, error) {
	conn.SetReadLimit(g.cfg.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(g.cfg.AuthTimeout)); err != nil {
		return nil, err
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		metrics.WSAuthFailures.Inc()
		return nil, &auth.AuthError{Reason: fmt.Sprintf("no auth frame: %v", err), Err: auth.ErrTokenMissing}
	}

	var af AuthFrame
	if err := json.Unmarshal(data, &af); err != nil {
		metrics.WSAuthFailures.Inc()
		return nil, &auth.AuthError{Reason: "malformed auth frame", Err: auth.ErrTokenMissing}
	}
	return g.OnConnect(af.SessionID, af.Token)
}

func (g *Gateway) handleClientFrame(s *Session, msg ClientFrame) {
	switch msg.Type {
	case ClientPing:
		if g.presence != nil {
			g.presence.MarkActive(s.UserID, g.now())
		}
		s.Enqueue(NewFrame(FramePong, nil, g.now()))

	case ClientSubscribe:
		groupID, ok := ParseGroupChannel(msg.Channel)
		if !ok {
			g.rejectFrame(s, "bad_channel", "channel must be group:<id>")
			return
		}
		if !g.sessions.IsMember(groupID, s.UserID) {
			g.rejectFrame(s, "forbidden", "not a member of "+msg.Channel)
			return
		}
		s.Subscribe(msg.Channel)
		s.Enqueue(NewFrame(FrameSubscribed, map[string]string{"channel": msg.Channel}, g.now()))

	default:
		g.rejectFrame(s, "unknown_type", "unsupported frame type "+strconv.Quote(msg.Type))
	}
}

func (g *Gateway) rejectFrame(s *Session, code, message string) {
	s.Enqueue(NewFrame(FrameError, ErrorNotice{Code: code, Message: message}, g.now()))
}

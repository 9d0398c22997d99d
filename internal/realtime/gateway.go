package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"chatline/api/internal/config"
	"chatline/api/internal/service"
)

const authWait = 10 * time.Second

// Gateway is the realtime connection entrypoint. Its only job in the auth
// core is the handshake: the connect carries a bearer credential, the
// authentication gate decides accept/reject, and the resolved identity is
// reported back to the client. Message routing belongs to collaborators.
type Gateway struct {
	auth     *service.AuthService
	sessions *service.SessionService
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewGateway(auth *service.AuthService, sessions *service.SessionService, cfg *config.AppConfig, log zerolog.Logger) *Gateway {
	return &Gateway{
		auth:     auth,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type readyFrame struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.Realtime.AllowedOrigins,
	})
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	identity, err := g.authenticate(r.Context(), r, conn)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	g.sessions.Touch(r.Context(), identity.SessionID, r.RemoteAddr)

	writeCtx, cancel := context.WithTimeout(r.Context(), g.cfg.Realtime.WriteTimeout)
	err = wsjson.Write(writeCtx, conn, readyFrame{
		Type:      "ready",
		UserID:    identity.UserID,
		SessionID: identity.SessionID,
	})
	cancel()
	if err != nil {
		return
	}

	g.log.Info().
		Str("user_id", identity.UserID).
		Str("session_id", identity.SessionID).
		Msg("realtime connection authenticated")

	// No client messages are expected past the handshake. CloseRead keeps a
	// reader running so pings are answered, and cancels the context when the
	// peer goes away.
	ctx := conn.CloseRead(r.Context())
	g.keepAlive(ctx, conn, identity)
	conn.Close(websocket.StatusNormalClosure, "")
}

// authenticate resolves the caller from the Authorization header, or from
// an auth frame sent right after connect for clients that cannot set
// headers on the upgrade request.
func (g *Gateway) authenticate(ctx context.Context, r *http.Request, conn *websocket.Conn) (service.Identity, error) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return g.auth.Validate(ctx, token)
	}

	readCtx, cancel := context.WithTimeout(ctx, authWait)
	defer cancel()

	var frame authFrame
	if err := wsjson.Read(readCtx, conn, &frame); err != nil {
		return service.Identity{}, err
	}
	if frame.Type != "auth" {
		return service.Identity{}, service.ErrUnauthorized
	}

	token := frame.Token
	if stripped, ok := bearerToken(token); ok {
		token = stripped
	}
	return g.auth.Validate(ctx, token)
}

// keepAlive pings the peer until it disappears. The credential was checked
// once at handshake; a revocation mid-connection is the collaborator's
// concern (it re-validates per operation).
func (g *Gateway) keepAlive(ctx context.Context, conn *websocket.Conn, identity service.Identity) {
	interval := g.cfg.Realtime.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, g.cfg.Realtime.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
			g.sessions.Touch(ctx, identity.SessionID, "")
		}
	}
}

func bearerToken(header string) (string, bool) {
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return token, token != ""
}

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TheSpideX/supporthub-api/services/auth-service/internal/config"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsReadLimit    = 32 * 1024
)

// Envelope is the wire frame for client events. Server events reuse the same
// shape via the Event type.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// WSServer adapts HTTP upgrade requests onto the gateway. Handshake
// credentials come from the auth cookies plus the deviceId/tabId query
// parameters, matching what the web client has on hand when it connects.
type WSServer struct {
	gateway *Gateway
	cookies config.CookieConfig
	rt      config.RealtimeConfig
	logger  *zerolog.Logger
}

func NewWSServer(
	gateway *Gateway,
	cookies config.CookieConfig,
	rt config.RealtimeConfig,
	logger *zerolog.Logger,
) *WSServer {
	return &WSServer{
		gateway: gateway,
		cookies: cookies,
		rt:      rt,
		logger:  logger,
	}
}

func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	conn.SetReadLimit(wsReadLimit)

	client := NewClient(uuid.NewString(), s.rt.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	params := HandshakeParams{
		AccessToken: cookieValue(r, s.cookies.AccessTokenName),
		CSRFToken:   r.Header.Get("X-CSRF-Token"),
		DeviceID:    r.URL.Query().Get("deviceId"),
		TabID:       r.URL.Query().Get("tabId"),
	}
	if params.CSRFToken == "" {
		params.CSRFToken = r.URL.Query().Get("csrfToken")
	}
	refreshToken := cookieValue(r, s.cookies.RefreshTokenName)

	// The writer drains the client's queue until the hub disconnects it, so
	// the auth:error from a failed handshake still reaches the peer. Once it
	// returns it closes the socket and cancels the connection context;
	// otherwise a hub-forced disconnect would leave a silent peer's read
	// pending forever.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, client)
		conn.Close(websocket.StatusNormalClosure, "")
		cancel()
	}()

	if err := s.gateway.Connect(ctx, client, params); err != nil {
		<-writerDone
		conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}
	defer s.gateway.Disconnect(client)

	s.readLoop(ctx, conn, client, &refreshToken)

	cancel()
	<-writerDone
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *WSServer) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			// Drain anything emitted just before the disconnect, the
			// terminal session event in particular.
			for {
				select {
				case ev := <-client.Send:
					if err := s.writeEvent(ctx, conn, ev); err != nil {
						return
					}
				default:
					return
				}
			}
		case ev := <-client.Send:
			if err := s.writeEvent(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func (s *WSServer) writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error().Err(err).Str("event", ev.Name).Msg("failed to marshal event")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *WSServer) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, refreshToken *string) {
	for {
		select {
		case <-client.Done():
			return
		default:
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Debug().Err(err).Str("conn_id", client.ID).Msg("discarded malformed frame")
			continue
		}

		s.dispatch(ctx, client, env, refreshToken)
	}
}

// dispatch routes one decoded frame. refreshToken is the connection's live
// rotation credential: seeded from the handshake cookie and replaced after
// every successful rotation, since the cookie value is spent at that point.
func (s *WSServer) dispatch(ctx context.Context, client *Client, env Envelope, refreshToken *string) {
	switch env.Event {
	case EventHeartbeat:
		var p HeartbeatPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.gateway.HandleHeartbeat(ctx, client, p)

	case EventUserActivity:
		var p ActivityPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.gateway.HandleActivity(ctx, client, p)

	case EventTokenRefresh:
		if next := s.gateway.HandleTokenRefresh(ctx, client, *refreshToken); next != "" {
			*refreshToken = next
		}

	case EventLeaderClaim:
		var p LeaderClaimPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.gateway.HandleLeaderClaim(client, p)

	default:
		s.logger.Debug().Str("event", env.Event).Str("conn_id", client.ID).Msg("ignored unknown event")
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

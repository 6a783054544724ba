// Package gateway maps the websocket transport to session events: binary
// frames become audio chunks, text frames become parsed control messages,
// and the session's outputs go back through a single write surface.
package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/dialogue-gateway/internal/config"
	"github.com/lexiqai/dialogue-gateway/internal/engine"
	"github.com/lexiqai/dialogue-gateway/internal/observability"
	"github.com/lexiqai/dialogue-gateway/internal/playback"
	"github.com/lexiqai/dialogue-gateway/internal/protocol"
	"github.com/lexiqai/dialogue-gateway/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins in development;
		// production deployments should restrict this.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Engines carries the collaborator constructors injected into each session.
// Responder and Synthesizer instances are shared read-only across sessions;
// recognizers are stateful, so a factory produces one per connection.
type Engines struct {
	NewRecognizer func() (engine.Recognizer, error)
	Responder     engine.Responder
	Synthesizer   engine.Synthesizer
}

// wsSink adapts a websocket connection to the playback coordinator's write
// surface. The coordinator serializes all writes, so no locking here.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) WriteText(payload []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSink) WriteBinary(chunk []byte) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// Handler returns the websocket endpoint handler. Each accepted connection
// gets an independent session with no cross-session state.
func Handler(cfg *config.Config, engines Engines) http.HandlerFunc {
	logger := observability.GetLogger()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to upgrade connection to websocket")
			return
		}
		defer conn.Close()

		recognizer, err := engines.NewRecognizer()
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create recognizer for session")
			return
		}

		metrics := observability.NewSessionMetrics()
		out := playback.NewCoordinator(&wsSink{conn: conn}, logger, metrics)
		sess := session.New(session.Options{
			Recognizer:      recognizer,
			Responder:       engines.Responder,
			Synthesizer:     engines.Synthesizer,
			Out:             out,
			Metrics:         metrics,
			Logger:          logger,
			HistoryMaxTurns: cfg.HistoryMaxTurns,
		})
		// Cleanup runs on every exit path: normal close, transport error,
		// or protocol violation.
		defer sess.Close()

		sessLogger := logger.With().Str("session_id", sess.ID()).Logger()
		sessLogger.Info().Str("remote", r.RemoteAddr).Msg("Client connected")

		ctx := r.Context()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					sessLogger.Warn().Err(err).Msg("Websocket read error")
				} else {
					sessLogger.Info().Msg("Client disconnected")
				}
				return
			}

			switch messageType {
			case websocket.BinaryMessage:
				sess.HandleAudio(ctx, data)

			case websocket.TextMessage:
				msg, err := protocol.ParseControl(data)
				if err != nil {
					sessLogger.Warn().Err(err).Msg("Malformed control message")
					metrics.RecordError("malformed_control", "gateway")
					continue
				}
				sess.HandleControl(ctx, msg)

			default:
				// Ping/pong frames are handled by the websocket library.
			}
		}
	}
}

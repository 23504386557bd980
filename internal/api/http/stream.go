package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"leaderboard-kinetics/internal/pipeline"
	"leaderboard-kinetics/internal/pubsub"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// stream pushes the JSON summary of every run for {tag} over a websocket
// until the client goes away.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	if s.deps.Stream == nil {
		writeError(w, http.StatusNotImplemented, "not_implemented", "summary streaming is disabled", "", "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}
	defer conn.Close()

	subject := pubsub.Subject(s.deps.SubjectPrefix, tag)
	updates, cancel := s.deps.Stream.Subscribe(subject)
	defer cancel()

	id, _ := pipeline.CorrelationIDFrom(r.Context())
	log := s.deps.Log.With().Str("request_id", id).Str("subject", subject).Logger()
	log.Debug().Msg("stream subscriber connected")
	defer func() { log.Debug().Msg("stream subscriber disconnected") }()

	// Inbound frames are only read to process pongs and detect close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

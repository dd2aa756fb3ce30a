package audio

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/relaydesk/voicegate/internal/config"
	"github.com/relaydesk/voicegate/internal/metrics"
	"github.com/relaydesk/voicegate/internal/orchestrator"
	"github.com/rs/zerolog"
)

// controlUtteranceComplete is the text frame sent after the last audio
// chunk of a reply, so the client knows playback for this turn is done
const controlUtteranceComplete = `{"type":"utterance-complete"}`

type frame struct {
	messageType int
	data        []byte
}

// Session is one caller's duplex audio connection. The read pump buffers
// incoming audio until the zero-length end-of-utterance marker, the turn
// loop runs the dialogue loop per utterance, and the write pump streams
// reply audio back. A new utterance cancels the in-flight turn (barge-in).
type Session struct {
	callID    string
	namespace string

	conn        *websocket.Conn
	orch        *orchestrator.Orchestrator
	transcriber Transcriber
	synthesizer Synthesizer
	config      *config.Config
	logger      zerolog.Logger

	send       chan frame
	utterances chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	turnMu     sync.Mutex
	turnCancel context.CancelFunc

	// OnClose runs after both pumps have stopped
	OnClose func()
}

// NewSession creates a session for an upgraded connection
func NewSession(conn *websocket.Conn, orch *orchestrator.Orchestrator, transcriber Transcriber, synthesizer Synthesizer, cfg *config.Config, logger zerolog.Logger, callID, namespace string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		callID:      callID,
		namespace:   namespace,
		conn:        conn,
		orch:        orch,
		transcriber: transcriber,
		synthesizer: synthesizer,
		config:      cfg,
		logger:      logger.With().Str("call_id", callID).Str("namespace", namespace).Logger(),
		send:        make(chan frame, 256),
		utterances:  make(chan []byte, 8),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start runs the session in the background
func (s *Session) Start() {
	go s.run()
}

func (s *Session) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump()
	}()
	go func() {
		defer wg.Done()
		s.turnLoop()
	}()

	s.readPump()

	// Reader is gone: abort any in-flight turn and let the loops drain
	s.cancelActiveTurn()
	s.cancel()
	close(s.utterances)
	wg.Wait()

	if s.OnClose != nil {
		s.OnClose()
	}
}

// readPump pumps audio frames from the connection into utterances
//
// The application runs readPump in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (s *Session) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(s.config.MaxAudioFrame)
	s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
		return nil
	})

	var buf bytes.Buffer
	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Msg("websocket read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if len(message) > 0 {
				buf.Write(message)
				continue
			}

			// Zero-length chunk: end of utterance
			if buf.Len() == 0 {
				continue
			}
			utterance := make([]byte, buf.Len())
			copy(utterance, buf.Bytes())
			buf.Reset()

			metrics.Get().RecordUtterance()
			s.cancelActiveTurn()

			// If the turn loop is behind, stop reading until it catches
			// up; utterances queue, they are never dropped
			select {
			case s.utterances <- utterance:
			case <-s.ctx.Done():
				return
			}

		case websocket.TextMessage:
			s.logger.Debug().Str("message", string(message)).Msg("control message from client")
		}
	}
}

// turnLoop runs the dialogue loop for each completed utterance
func (s *Session) turnLoop() {
	defer close(s.send)
	for utterance := range s.utterances {
		s.handleUtterance(utterance)
	}
}

func (s *Session) handleUtterance(utterance []byte) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	s.setTurnCancel(cancel)

	text, err := s.transcriber.Transcribe(ctx, utterance)
	if err != nil {
		s.logger.Warn().Err(err).Msg("transcription failed, utterance skipped")
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	reply, err := s.orch.HandleTurn(ctx, orchestrator.TurnRequest{
		Namespace:  s.namespace,
		CallID:     s.callID,
		Utterance:  text,
		RecordUser: true,
	})
	if err != nil {
		// Barge-in or hangup while the turn was running
		s.logger.Debug().Err(err).Msg("turn abandoned")
		return
	}

	chunks, err := s.synthesizer.Synthesize(ctx, reply.ResponseText)
	if err != nil {
		s.logger.Warn().Err(err).Msg("synthesis failed, reply dropped")
		return
	}

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			// Barge-in: stop streaming the superseded reply
			return
		}
		s.enqueue(frame{websocket.BinaryMessage, chunk})
	}
	s.enqueue(frame{websocket.TextMessage, []byte(controlUtteranceComplete)})
}

func (s *Session) enqueue(f frame) {
	select {
	case s.send <- f:
	case <-s.ctx.Done():
	}
}

func (s *Session) setTurnCancel(cancel context.CancelFunc) {
	s.turnMu.Lock()
	s.turnCancel = cancel
	s.turnMu.Unlock()
}

func (s *Session) cancelActiveTurn() {
	s.turnMu.Lock()
	if s.turnCancel != nil {
		s.turnCancel()
	}
	s.turnMu.Unlock()
}

// writePump pumps frames to the connection
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.config.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case f, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(f.messageType, f.data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package wsrelay

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

const (
	messagePing      = "ping"
	messagePong      = "pong"
	messageOffer     = "offer"
	messageAnswer    = "answer"
	messageCandidate = "candidate"
	messageError     = "error"
)

type signalMessage struct {
	Type          string  `json:"type"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	Message       string  `json:"message,omitempty"`
}

type exchangePhase int

const (
	phaseAwaitingPong exchangePhase = iota
	phaseAwaitingAnswer
)

type exchangeResult struct {
	sdp string
	err error
}

// pendingExchange tracks one ping/pong/offer/answer round trip. Only run
// touches phase and writes to conn.
type pendingExchange struct {
	conn     *websocket.Conn
	offerSDP string
	sink     ports.CandidateSink
	logger   *slog.Logger

	phase      exchangePhase
	candidates int

	result      chan exchangeResult
	resolveOnce sync.Once
}

func newPendingExchange(conn *websocket.Conn, offerSDP string, sink ports.CandidateSink, logger *slog.Logger) *pendingExchange {
	return &pendingExchange{
		conn:     conn,
		offerSDP: offerSDP,
		sink:     sink,
		logger:   logger,
		phase:    phaseAwaitingPong,
		result:   make(chan exchangeResult, 1),
	}
}

func (p *pendingExchange) resolve(sdp string, err error) {
	p.resolveOnce.Do(func() {
		p.result <- exchangeResult{sdp: sdp, err: err}
	})
}

func (p *pendingExchange) run() {
	if err := p.send(signalMessage{Type: messagePing}); err != nil {
		p.resolve("", domain.NewTransportError("failed to send ping", err))
		return
	}

	for {
		_, payload, err := p.conn.ReadMessage()
		if err != nil {
			p.resolve("", domain.NewTransportError("signaling websocket closed before answer", err))
			return
		}
		if p.handle(payload) {
			return
		}
	}
}

// handle applies one server message and reports whether the exchange is over.
func (p *pendingExchange) handle(payload []byte) bool {
	msg, ok := p.decode(payload)
	if !ok {
		return false
	}

	switch msg.Type {
	case messagePong:
		if p.phase != phaseAwaitingPong {
			return false
		}
		p.phase = phaseAwaitingAnswer
		if err := p.send(signalMessage{Type: messageOffer, SDP: p.offerSDP}); err != nil {
			p.resolve("", domain.NewTransportError("failed to send offer", err))
			return true
		}
		return false

	case messageCandidate:
		p.addCandidate(msg)
		return false

	case messageAnswer:
		if strings.TrimSpace(msg.SDP) == "" {
			p.resolve("", domain.NewProtocolError(domain.NoStatusCode, "answer message has no sdp"))
			return true
		}
		p.logger.Debug("signaling answer received", "candidates", p.candidates)
		p.resolve(msg.SDP, nil)
		return true

	case messageError:
		message := strings.TrimSpace(msg.Message)
		if message == "" {
			message = "signaling server returned an unknown error"
		}
		p.resolve("", domain.NewProtocolError(domain.NoStatusCode, message))
		return true

	default:
		p.logger.Debug("ignoring signaling message", "type", msg.Type)
		return false
	}
}

// decode reads the type first so a mistyped field never hides the message
// kind. A payload that does not decode leaves only the type set.
func (p *pendingExchange) decode(payload []byte) (signalMessage, bool) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || strings.TrimSpace(envelope.Type) == "" {
		p.logger.Debug("ignoring malformed signaling message", "bytes", len(payload))
		return signalMessage{}, false
	}
	msgType := strings.TrimSpace(envelope.Type)

	var msg signalMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.logger.Warn("signaling message fields unreadable", "type", msgType, "error", err)
		return signalMessage{Type: msgType}, true
	}
	msg.Type = msgType
	return msg, true
}

func (p *pendingExchange) addCandidate(msg signalMessage) {
	if strings.TrimSpace(msg.Candidate) == "" {
		p.logger.Warn("dropping candidate message without candidate")
		return
	}
	if p.sink == nil {
		return
	}
	err := p.sink.AddRemoteCandidate(domain.ICECandidate{
		Candidate:     msg.Candidate,
		SDPMid:        msg.SDPMid,
		SDPMLineIndex: msg.SDPMLineIndex,
	})
	if err != nil {
		p.logger.Warn("dropping remote candidate", "error", err)
		return
	}
	p.candidates++
}

func (p *pendingExchange) send(msg signalMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"timebank-engine/internal/domain"
	"timebank-engine/internal/engine"
)

// WSHandler wires UI collaborators into the engine over a websocket: it
// forwards quiz answers and settings commands inbound and streams engine
// events outbound. While a socket is attached the engine counts the app as
// foregrounded, which pauses wall-clock debiting.
type WSHandler struct {
	engine   *engine.Engine
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(eng *engine.Engine, log *slog.Logger) *WSHandler {
	return &WSHandler{
		engine: eng,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Correct   bool   `json:"correct"`
	StartedAt int64  `json:"startedAt"` // unix ms; 0 means unknown
	Category  string `json:"category"`
}

type creditPayload struct {
	Minutes float64 `json:"minutes"`
}

type setTimePayload struct {
	Ms int64 `json:"ms"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type statusPayload struct {
	Score  domain.ScoreInfo  `json:"score"`
	Ledger domain.LedgerInfo `json:"ledger"`
}

// ServeStatus returns the read-only aggregate snapshot over plain HTTP.
func (h *WSHandler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusPayload{
		Score:  h.engine.ScoreInfo(),
		Ledger: h.engine.LedgerInfo(),
	})
}

// ServeWS upgrades the request and bridges the connection to the engine.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	fg := h.engine.Foreground()
	fg.Acquire()
	defer fg.Release()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	// Event subscribers run on engine goroutines; a full buffer drops the
	// update rather than stalling the engine. Snapshots resync clients.
	var sendMu sync.Mutex
	sendClosed := false
	push := func(msg outboundMessage[any]) {
		sendMu.Lock()
		defer sendMu.Unlock()
		if sendClosed {
			return
		}
		select {
		case send <- msg:
		default:
		}
	}

	notifier := h.engine.Notifier()
	events := []string{
		domain.EventScoreUpdated,
		domain.EventPenaltyApplied,
		domain.EventDailyReset,
		domain.EventTimerUpdate,
		domain.EventShowMessage,
	}
	unsubs := make([]func(), 0, len(events))
	for _, name := range events {
		unsubs = append(unsubs, notifier.Subscribe(name, func(ev engine.Event) {
			push(outboundMessage[any]{Type: ev.Name, Payload: ev.Payload})
		}))
	}

	push(outboundMessage[any]{Type: "status", Payload: statusPayload{
		Score:  h.engine.ScoreInfo(),
		Ledger: h.engine.LedgerInfo(),
	}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			var startedAt time.Time
			if payload.StartedAt > 0 {
				startedAt = time.UnixMilli(payload.StartedAt)
			}
			result := h.engine.RecordAnswer(payload.Correct, domain.AnswerContext{
				StartedAt: startedAt,
				Category:  payload.Category,
			})
			push(outboundMessage[any]{Type: "answerResult", Payload: result})
		case "credit":
			var payload creditPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid credit payload"}})
				continue
			}
			if _, err := h.engine.Ledger().Credit(payload.Minutes); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "setTime":
			var payload setTimePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid setTime payload"}})
				continue
			}
			h.engine.Ledger().SetAbsolute(payload.Ms)
		case "status":
			push(outboundMessage[any]{Type: "status", Payload: statusPayload{
				Score:  h.engine.ScoreInfo(),
				Ledger: h.engine.LedgerInfo(),
			}})
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	for _, unsub := range unsubs {
		unsub()
	}
	sendMu.Lock()
	sendClosed = true
	sendMu.Unlock()
	close(send)
	<-writerDone
}

package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
	"nhooyr.io/websocket"
)

// FileMirror writes a newline-delimited JSON copy of every event and audit
// record to a lumberjack-rotated log file, independent of the primary
// database -- a durability backstop if the database write succeeds but the
// process crashes before a downstream consumer reads the row.
type FileMirror struct {
	logger *slog.Logger
}

// NewFileMirror opens (creating if needed) a rotating log file at path.
func NewFileMirror(path string, maxSizeMB, maxBackups, maxAgeDays int) *FileMirror {
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	handler := slog.NewJSONHandler(writer, nil)
	return &FileMirror{logger: slog.New(handler)}
}

func (m *FileMirror) MirrorEvent(evt Event) {
	m.logger.Info("event", "id", evt.ID, "type", evt.Type, "correlation_id", evt.CorrelationID, "subject", evt.Subject)
}

func (m *FileMirror) MirrorAudit(rec AuditRecord) {
	m.logger.Info("audit", "id", rec.ID, "action", rec.Action, "actor_type", rec.ActorType, "actor_id", rec.ActorID, "correlation_id", rec.CorrelationID)
}

// TailMirror fans out every mirrored event to connected websocket readers
// of the read-only ops event tail (`GET /ops/events/tail`). It never blocks
// the write path: a slow or disconnected client only drops its own frames.
type TailMirror struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewTailMirror constructs an empty TailMirror.
func NewTailMirror() *TailMirror {
	return &TailMirror{clients: make(map[*websocket.Conn]chan []byte)}
}

func (m *TailMirror) MirrorEvent(evt Event) {
	m.broadcast(map[string]interface{}{"kind": "event", "type": evt.Type, "id": evt.ID, "correlation_id": evt.CorrelationID})
}

func (m *TailMirror) MirrorAudit(rec AuditRecord) {
	m.broadcast(map[string]interface{}{"kind": "audit", "action": rec.Action, "id": rec.ID, "correlation_id": rec.CorrelationID})
}

func (m *TailMirror) broadcast(payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.clients {
		select {
		case ch <- raw:
		default:
			// Slow consumer: drop this frame rather than block the audit
			// write path.
		}
	}
}

// ServeHTTP upgrades an ops caller to a websocket and streams every
// subsequently mirrored event/audit record until the client disconnects.
func (m *TailMirror) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "tail stream closed")

	ch := make(chan []byte, 32)
	m.mu.Lock()
	m.clients[conn] = ch
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.clients, conn)
		m.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case frame := <-ch:
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		}
	}
}

// FanoutMirror combines multiple mirrors so a Sink can write to a file and
// a tail stream (and any future destination) without the Sink itself
// knowing about either.
type FanoutMirror struct {
	mirrors []Mirror
}

// NewFanoutMirror combines the given mirrors in order.
func NewFanoutMirror(mirrors ...Mirror) *FanoutMirror {
	return &FanoutMirror{mirrors: mirrors}
}

func (f *FanoutMirror) MirrorEvent(evt Event) {
	for _, m := range f.mirrors {
		m.MirrorEvent(evt)
	}
}

func (f *FanoutMirror) MirrorAudit(rec AuditRecord) {
	for _, m := range f.mirrors {
		m.MirrorAudit(rec)
	}
}

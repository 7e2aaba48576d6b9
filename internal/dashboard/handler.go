package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/watch"
)

// Handler turns daemon notifications into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a handler broadcasting through server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{server: server, logger: logger}
}

// ActivityChanged broadcasts an activity_update message.
func (h *Handler) ActivityChanged(ev watch.FileEvent) {
	h.send(MessageTypeActivityUpdate, ActivityUpdateData{
		ID:     ev.ID,
		Action: ev.Op.String(),
	})
}

// SyncCompleted broadcasts a sync_complete message.
func (h *Handler) SyncCompleted(report backend.SyncReport, err error) {
	data := SyncCompleteData{
		Added:     report.Added,
		Replaced:  report.Replaced,
		Removed:   report.Removed,
		Unchanged: report.Unchanged,
		Failed:    report.Failed,
	}
	if err != nil {
		data.Error = err.Error()
	}
	h.send(MessageTypeSyncComplete, data)
}

func (h *Handler) send(typ MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      raw,
	})
}

var _ watch.Notifier = (*Handler)(nil)

package dashboard

import (
	"encoding/json"
	"time"
)

// MessageType names the payload of a Message.
type MessageType string

const (
	// MessageTypeActivityUpdate is sent for a created, modified or deleted
	// activity file.
	MessageTypeActivityUpdate MessageType = "activity_update"

	// MessageTypeSyncComplete is sent after each sync into the mirror. The
	// latest one is replayed to clients when they connect.
	MessageTypeSyncComplete MessageType = "sync_complete"
)

// Message is the JSON envelope written to websocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ActivityUpdateData is the payload of MessageTypeActivityUpdate.
type ActivityUpdateData struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// SyncCompleteData is the payload of MessageTypeSyncComplete.
type SyncCompleteData struct {
	Added     int    `json:"added"`
	Replaced  int    `json:"replaced"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

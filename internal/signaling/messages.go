package signaling

import "encoding/json"

// Message types of the signaling protocol.
const (
	TypeRegister             = "register"
	TypeRegistered           = "registered"
	TypeListRecorders        = "list-recorders"
	TypeRecorders            = "recorders"
	TypeRecordersUpdated     = "recorders-updated"
	TypeRecorderDisconnected = "recorder-disconnected"
	TypeOffer                = "offer"
	TypeAnswer               = "answer"
	TypeICECandidate         = "ice-candidate"
	TypePing                 = "ping"
	TypePong                 = "pong"
	TypeError                = "error"
)

// Client roles.
const (
	RoleRecorder = "recorder"
	RoleViewer   = "viewer"
)

// Message is the envelope of every signaling message.
type Message struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Role       string          `json:"role,omitempty"`
	From       string          `json:"from,omitempty"`
	Target     string          `json:"target,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Recorders  []RecorderInfo  `json:"recorders,omitempty"`
	RecorderID string          `json:"recorderId,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RecorderInfo is one entry of the recorder list.
type RecorderInfo struct {
	ID        string `json:"id"`
	Online    bool   `json:"online"`
	Recording bool   `json:"recording"`
}

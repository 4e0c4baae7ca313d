package transport

// CommandType identifies a recording command.
type CommandType string

const (
	CommandStart CommandType = "start"
	CommandStop  CommandType = "stop"
)

// Command is the wire format of commands sent over the control channel.
type Command struct {
	Type      CommandType `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

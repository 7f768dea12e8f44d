package ws

import "encoding/json"

// Message types of the GraphQL over WebSocket protocol.
const (
	MsgConnectionInit      = "connection_init"
	MsgConnectionAck       = "connection_ack"
	MsgConnectionError     = "connection_error"
	MsgConnectionTerminate = "connection_terminate"
	MsgKeepAlive           = "ka"
	MsgStart               = "start"
	MsgData                = "data"
	MsgError               = "error"
	MsgComplete            = "complete"
	MsgStop                = "stop"
)

// Frame is one protocol message. ID is the client-chosen operation id,
// unique per connection while the operation is active.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InitPayload carries optional connection parameters sent with
// connection_init.
type InitPayload struct {
	Authorization string `json:"Authorization"`
	Token         string `json:"token"`
}

// StartPayload carries the operation to execute.
type StartPayload struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// ErrorPayload is the payload of error and connection_error frames.
type ErrorPayload struct {
	Message string `json:"message"`
}

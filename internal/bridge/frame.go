package bridge

import "encoding/json"

// CommandFrame is one outbound message to the browser over the duplex
// channel. RequestID is empty only for the liveness ping, which expects no
// correlated reply.
type CommandFrame struct {
	RequestID string          `json:"requestId,omitempty"`
	Command   string          `json:"command"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame is one inbound message from the browser. Result and Error are
// mutually exclusive; Error takes precedence when both are present.
type ResponseFrame struct {
	RequestID string          `json:"requestId"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PingCommand is the no-op command used by the liveness probe.
const PingCommand = "ping"

package a2a

import (
	"encoding/json"
	"fmt"
)

const (
	jsonrpcVersion = "2.0"
	methodSendTask = "tasks/send"
	methodGetTask  = "tasks/get"
)

// JSON-RPC error codes used by the server.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeTaskNotFound   = -32001
)

// TaskSendParams is the payload of a tasks/send call.
type TaskSendParams struct {
	ID                  string            `json:"id"`
	SessionID           string            `json:"sessionId"`
	Message             *Message          `json:"message"`
	AcceptedOutputModes []string          `json:"acceptedOutputModes,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// TaskQueryParams is the payload of a tasks/get call.
type TaskQueryParams struct {
	ID string `json:"id"`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Result  *Task     `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("a2a rpc error %d: %s", e.Code, e.Message)
}

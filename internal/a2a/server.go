package a2a

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WellKnownCardPath is where agents publish their card.
const WellKnownCardPath = "/.well-known/agent.json"

const (
	// taskTTL is how long a finished task is kept before it is dropped.
	taskTTL = time.Hour
	// maxTaskHistory bounds the messages kept per task.
	maxTaskHistory = 20
)

// SessionForgetter is implemented by responders that keep per-session state.
type SessionForgetter interface {
	Forget(sessionID string)
}

// Server answers A2A JSON-RPC calls from other agents.
type Server struct {
	card      *AgentCard
	responder Responder
	logger    *zap.Logger
	now       func() time.Time
	ttl       time.Duration

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewServer creates a server publishing card and answering through responder.
func NewServer(card *AgentCard, responder Responder, logger *zap.Logger) *Server {
	return &Server{
		card:      card,
		responder: responder,
		logger:    logger,
		now:       time.Now,
		ttl:       taskTTL,
		tasks:     make(map[string]*Task),
	}
}

// Routes returns the JSON-RPC endpoint and the agent card.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.HandleRPC)
	r.Get(WellKnownCardPath, s.ServeCard)
	return r
}

// ServeCard writes the agent card.
func (s *Server) ServeCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.card)
}

// Task returns a copy of a tracked task.
func (s *Server) Task(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// HandleRPC serves one JSON-RPC call.
func (s *Server) HandleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, rpcResponse{JSONRPC: jsonrpcVersion, Error: &RPCError{Code: codeParseError, Message: "parse error"}})
		return
	}
	if req.JSONRPC != jsonrpcVersion {
		writeRPC(w, rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &RPCError{Code: codeInvalidRequest, Message: "jsonrpc must be 2.0"}})
		return
	}

	var (
		task *Task
		rerr *RPCError
	)
	switch req.Method {
	case methodSendTask:
		var params TaskSendParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			rerr = &RPCError{Code: codeInvalidParams, Message: err.Error()}
			break
		}
		task, rerr = s.sendTask(r, &params)
	case methodGetTask:
		var params TaskQueryParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			rerr = &RPCError{Code: codeInvalidParams, Message: err.Error()}
			break
		}
		t, ok := s.Task(params.ID)
		if !ok {
			rerr = &RPCError{Code: codeTaskNotFound, Message: "task not found"}
			break
		}
		task = t
	default:
		rerr = &RPCError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}

	writeRPC(w, rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Result: task, Error: rerr})
}

func (s *Server) sendTask(r *http.Request, params *TaskSendParams) (*Task, *RPCError) {
	if params.ID == "" || params.Message.Text() == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "task id and text message are required"}
	}

	s.mu.Lock()
	expired := s.evictLocked(s.now())
	task, ok := s.tasks[params.ID]
	if !ok {
		task = &Task{
			ID:        params.ID,
			SessionID: params.SessionID,
			Status:    TaskStatus{State: StateSubmitted, Timestamp: s.now()},
		}
		s.tasks[params.ID] = task
	}
	if err := Transition(task.Status.State, StateWorking); err != nil {
		s.mu.Unlock()
		return nil, &RPCError{Code: codeInvalidRequest, Message: err.Error()}
	}
	task.Status = TaskStatus{State: StateWorking, Timestamp: s.now()}
	task.History = appendBounded(task.History, params.Message)
	s.mu.Unlock()
	s.forget(expired)

	reply, err := s.responder.Respond(r.Context(), params.SessionID, params.Message)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("responder failed", zap.String("task", params.ID), zap.Error(err))
		task.Status = TaskStatus{
			State:     StateFailed,
			Message:   TextMessage("agent", "I'm having trouble responding right now.", nil),
			Timestamp: s.now(),
		}
		return cloneTask(task), nil
	}

	msg := TextMessage("agent", reply, nil)
	task.Status = TaskStatus{State: StateCompleted, Message: msg, Timestamp: s.now()}
	task.History = appendBounded(task.History, msg)
	s.logger.Info("a2a task completed",
		zap.String("task", params.ID),
		zap.String("session", params.SessionID))
	return cloneTask(task), nil
}

// evictLocked drops finished tasks idle for longer than the TTL and returns
// the sessions no remaining task refers to.
func (s *Server) evictLocked(now time.Time) []string {
	var dropped []string
	for id, t := range s.tasks {
		if t.Status.State.Final() && now.Sub(t.Status.Timestamp) > s.ttl {
			delete(s.tasks, id)
			dropped = append(dropped, t.SessionID)
		}
	}
	if len(dropped) == 0 {
		return nil
	}
	live := make(map[string]bool, len(s.tasks))
	for _, t := range s.tasks {
		live[t.SessionID] = true
	}
	var expired []string
	for _, sid := range dropped {
		if sid != "" && !live[sid] {
			live[sid] = true
			expired = append(expired, sid)
		}
	}
	return expired
}

func (s *Server) forget(sessions []string) {
	f, ok := s.responder.(SessionForgetter)
	if !ok {
		return
	}
	for _, sid := range sessions {
		f.Forget(sid)
	}
	if len(sessions) > 0 {
		s.logger.Debug("expired a2a sessions", zap.Int("count", len(sessions)))
	}
}

func appendBounded(history []*Message, msg *Message) []*Message {
	history = append(history, msg)
	if len(history) > maxTaskHistory {
		history = append([]*Message(nil), history[len(history)-maxTaskHistory:]...)
	}
	return history
}

func cloneTask(t *Task) *Task {
	c := *t
	c.History = append([]*Message(nil), t.History...)
	c.Artifacts = append([]Artifact(nil), t.Artifacts...)
	return &c
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/xoxo/internal/conversation"
	"go.uber.org/zap"
)

// Client sends conversation messages to remote agents over A2A. It
// implements conversation.Transport; a thread id is "<taskID>:<sessionID>".
type Client struct {
	role   string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates an A2A client. Requests time out after timeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		role:   "agent",
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// SendNew starts a new task and session with the partner.
func (c *Client) SendNew(ctx context.Context, partner conversation.Partner, text string) (*conversation.Reply, error) {
	return c.send(ctx, partner, uuid.New().String(), uuid.New().String(), text)
}

// SendReply continues an existing thread.
func (c *Client) SendReply(ctx context.Context, partner conversation.Partner, threadID, text string) (*conversation.Reply, error) {
	taskID, sessionID, ok := ParseThreadID(threadID)
	if !ok {
		return nil, fmt.Errorf("no existing conversation with %s: invalid thread id %q", partner.ID, threadID)
	}
	return c.send(ctx, partner, taskID, sessionID, text)
}

// ThreadID joins a task and session id.
func ThreadID(taskID, sessionID string) string {
	return taskID + ":" + sessionID
}

// ParseThreadID splits a thread id produced by ThreadID.
func ParseThreadID(threadID string) (taskID, sessionID string, ok bool) {
	taskID, sessionID, ok = strings.Cut(threadID, ":")
	if !ok || taskID == "" || sessionID == "" {
		return "", "", false
	}
	return taskID, sessionID, true
}

func (c *Client) send(ctx context.Context, partner conversation.Partner, taskID, sessionID, text string) (*conversation.Reply, error) {
	if partner.URL == "" {
		return nil, fmt.Errorf("agent %s has no url", partner.ID)
	}
	params := TaskSendParams{
		ID:        taskID,
		SessionID: sessionID,
		Message: TextMessage(c.role, text, map[string]string{
			"conversation_id": sessionID,
			"message_id":      uuid.New().String(),
		}),
		AcceptedOutputModes: []string{"text", "text/plain"},
		Metadata:            map[string]string{"conversation_id": sessionID},
	}
	task, err := c.SendTask(ctx, partner.URL, &params)
	if err != nil {
		return nil, err
	}

	switch task.Status.State {
	case StateFailed:
		return nil, fmt.Errorf("agent %s task %s failed", partner.ID, task.ID)
	case StateCanceled:
		return nil, fmt.Errorf("agent %s task %s is cancelled", partner.ID, task.ID)
	}

	reply := task.Status.Message.Text()
	if reply == "" {
		for _, a := range task.Artifacts {
			if t := (&Message{Parts: a.Parts}).Text(); t != "" {
				reply = t
				break
			}
		}
	}
	return &conversation.Reply{
		ThreadID: ThreadID(taskID, sessionID),
		Status:   string(task.Status.State),
		Text:     reply,
	}, nil
}

// SendTask performs a raw tasks/send call against an agent endpoint.
func (c *Client) SendTask(ctx context.Context, url string, params *TaskSendParams) (*Task, error) {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonrpcVersion,
		ID:      uuid.New().String(),
		Method:  methodSendTask,
		Params:  rawParams,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("agent error %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if rpcResp.Result == nil {
		return nil, fmt.Errorf("empty result from %s", url)
	}

	c.logger.Debug("a2a task sent",
		zap.String("url", url),
		zap.String("task", params.ID),
		zap.String("state", string(rpcResp.Result.Status.State)))
	return rpcResp.Result, nil
}

// FetchCard downloads an agent card from baseURL/.well-known/agent.json.
func (c *Client) FetchCard(ctx context.Context, baseURL string) (*AgentCard, error) {
	url := strings.TrimSuffix(baseURL, "/") + WellKnownCardPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch card: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch card %s: status %d", url, resp.StatusCode)
	}
	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode card: %w", err)
	}
	if card.URL == "" {
		card.URL = baseURL
	}
	return &card, nil
}

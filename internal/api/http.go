package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mathmentor/internal/session"
)

// HTTPClient talks to the tutoring backend's REST API with a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTP builds a client for baseURL. The token is attached to every
// request; acquiring it belongs to an external collaborator.
func NewHTTP(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type wireMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func toWire(history []session.Message) []wireMessage {
	out := make([]wireMessage, 0, len(history))
	for _, m := range history {
		out = append(out, wireMessage{ID: m.ID, Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp})
	}
	return out
}

func (c *HTTPClient) ListActivities(ctx context.Context, classroomID string, sync bool) ([]Activity, error) {
	q := url.Values{"classroom_id": {classroomID}}
	if sync {
		q.Set("sync", "true")
	}
	var out struct {
		Activities []Activity `json:"activities"`
	}
	if err := c.do(ctx, http.MethodGet, "/student/activities?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return out.Activities, nil
}

func (c *HTTPClient) StartActivity(ctx context.Context, activityID string) error {
	path := fmt.Sprintf("/student/activities/%s/start", url.PathEscape(activityID))
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("start activity: %w", err)
	}
	return nil
}

func (c *HTTPClient) Introduction(ctx context.Context, activityID string) (string, error) {
	path := fmt.Sprintf("/student/activities/%s/introduction", url.PathEscape(activityID))
	var out struct {
		Introduction string `json:"introduction"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", fmt.Errorf("introduction: %w", err)
	}
	return out.Introduction, nil
}

func (c *HTTPClient) PhaseResponse(ctx context.Context, activityID string, req PhaseRequest) (PhaseReply, error) {
	body := struct {
		ActivityID          string        `json:"activity_id"`
		Message             string        `json:"message"`
		CurrentPhase        string        `json:"current_phase"`
		ConversationHistory []wireMessage `json:"conversation_history"`
	}{
		ActivityID:          activityID,
		Message:             req.Input,
		CurrentPhase:        req.CurrentPhase.String(),
		ConversationHistory: toWire(req.History),
	}
	var out struct {
		Response  string `json:"response"`
		NextPhase string `json:"next_phase"`
	}
	if err := c.do(ctx, http.MethodPost, "/student/activities/phase-response", body, &out); err != nil {
		return PhaseReply{}, fmt.Errorf("phase response: %w", err)
	}
	reply := PhaseReply{Response: out.Response}
	if p, ok := session.ParsePhase(out.NextPhase); ok {
		reply.NextPhase = &p
	}
	return reply, nil
}

func (c *HTTPClient) SaveConversation(ctx context.Context, sessionID string, history []session.Message) error {
	path := fmt.Sprintf("/student/activities/%s/save-conversation", url.PathEscape(sessionID))
	body := struct {
		ConversationHistory []wireMessage `json:"conversation_history"`
	}{ConversationHistory: toWire(history)}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (c *HTTPClient) AssessUnderstanding(ctx context.Context, activityID string, history []session.Message) (Assessment, error) {
	body := struct {
		ActivityID          string        `json:"activity_id"`
		ConversationHistory []wireMessage `json:"conversation_history"`
	}{ActivityID: activityID, ConversationHistory: toWire(history)}
	var out Assessment
	if err := c.do(ctx, http.MethodPost, "/student/activities/assess-understanding", body, &out); err != nil {
		return Assessment{}, fmt.Errorf("assess understanding: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) CompleteSession(ctx context.Context, sessionID string, history []session.Message, score float64, feedback *string) error {
	path := fmt.Sprintf("/student/activities/%s/complete-conversational", url.PathEscape(sessionID))
	body := struct {
		ConversationHistory []wireMessage `json:"conversation_history"`
		Score               float64       `json:"score"`
		Feedback            *string       `json:"feedback,omitempty"`
	}{ConversationHistory: toWire(history), Score: clampScore(score), Feedback: feedback}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	return nil
}

func (c *HTTPClient) ClassroomAnalytics(ctx context.Context, classroomID, analyticsRange string) (AnalyticsSnapshot, error) {
	path := fmt.Sprintf("/teacher/analytics/%s?range=%s", url.PathEscape(classroomID), url.QueryEscape(analyticsRange))
	var out AnalyticsSnapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return AnalyticsSnapshot{}, fmt.Errorf("classroom analytics: %w", err)
	}
	return out, nil
}

// clampScore bounds to 0..100 with two decimals, as the backend stores it.
func clampScore(score float64) float64 {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return float64(int(score*100+0.5)) / 100
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Gotify sends notifications to a Gotify server via its REST API.
type Gotify struct {
	url    string
	token  string
	client *http.Client
}

// NewGotify creates a Gotify provider. url is the base server URL; token
// is the application token.
func NewGotify(url, token string) *Gotify {
	return &Gotify{
		url:    strings.TrimRight(url, "/"),
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Gotify) Name() string { return "gotify" }

type gotifyMessage struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

func (g *Gotify) Send(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(gotifyMessage{Title: title, Message: body, Priority: 5})
	if err != nil {
		return fmt.Errorf("marshal gotify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/message", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create gotify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gotify-Key", g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send gotify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gotify returned %s", resp.Status)
	}
	return nil
}

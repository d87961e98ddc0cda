package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxListedSessions caps how many session ids are spelled out in a summary.
const maxListedSessions = 10

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// UploadSummary is what gets announced when a session records file arrives.
type UploadSummary struct {
	FileID     string
	Filename   string
	SessionIDs []string
}

// PostUploadSummary announces an upload to the channel and returns the
// message timestamp.
func (p *Poster) PostUploadSummary(ctx context.Context, s UploadSummary) (string, error) {
	text := formatUploadMessage(s)

	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "File id: `" + s.FileID + "`",
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted upload to slack", "ts", slackResp.TS, "file_id", s.FileID)
	return slackResp.TS, nil
}

func formatUploadMessage(s UploadSummary) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*New session records upload:* %s\n", s.Filename)

	if len(s.SessionIDs) == 0 {
		sb.WriteString("_No evaluation sessions found in this file._")
		return sb.String()
	}

	fmt.Fprintf(&sb, "*Sessions found: %d*\n", len(s.SessionIDs))
	for i, id := range s.SessionIDs {
		if i == maxListedSessions {
			fmt.Fprintf(&sb, "…and %d more\n", len(s.SessionIDs)-maxListedSessions)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, id)
	}
	return sb.String()
}

// Package scan asks a language model for a security assessment of a message.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/validate"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 1024
	defaultAPIURL    = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"

	reportTool = "report_assessment"
)

// ErrNoAPIKey is returned when the scanner has no API key.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// ThreatLevel grades a message.
type ThreatLevel string

const (
	ThreatSafe     ThreatLevel = "SAFE"
	ThreatLow      ThreatLevel = "LOW"
	ThreatMedium   ThreatLevel = "MEDIUM"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatCritical ThreatLevel = "CRITICAL"
)

// Assessment is the model's verdict on one message.
type Assessment struct {
	ThreatLevel     ThreatLevel `json:"threat_level" validate:"required,oneof=SAFE LOW MEDIUM HIGH CRITICAL"`
	ThreatsFound    []string    `json:"threats_found"`
	Explanation     string      `json:"explanation" validate:"required"`
	Recommendations []string    `json:"recommendations"`
}

// Safe reports whether no threat was found.
func (a Assessment) Safe() bool { return a.ThreatLevel == ThreatSafe }

// Scanner calls the Anthropic Messages API.
type Scanner struct {
	apiKey    string
	model     string
	maxTokens int
	url       string
	client    *http.Client
}

// New returns a Scanner. Empty modelName and non-positive maxTokens take
// defaults.
func New(apiKey, modelName string, maxTokens int) *Scanner {
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Scanner{
		apiKey:    apiKey,
		model:     modelName,
		maxTokens: maxTokens,
		url:       defaultAPIURL,
		client:    &http.Client{},
	}
}

// WithURL points the scanner at another Messages endpoint.
func (s *Scanner) WithURL(url string) *Scanner {
	s.url = url
	return s
}

// Scan assesses a message. body may be HTML.
func (s *Scanner) Scan(ctx context.Context, subject, body string) (Assessment, error) {
	if s.apiKey == "" {
		return Assessment{}, ErrNoAPIKey
	}

	resp, err := s.callAPI(ctx, apiRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    systemPrompt,
		Messages: []apiMessage{{
			Role:    "user",
			Content: fmt.Sprintf("Email Subject: %s\nEmail Body: %s", subject, body),
		}},
		Tools:      []apiTool{assessmentTool()},
		ToolChoice: &apiToolChoice{Type: "tool", Name: reportTool},
	})
	if err != nil {
		return Assessment{}, err
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.Name != reportTool {
			continue
		}
		var a Assessment
		if err := json.Unmarshal(block.Input, &a); err != nil {
			return Assessment{}, fmt.Errorf("decoding assessment: %w", err)
		}
		a.ThreatLevel = ThreatLevel(strings.ToUpper(string(a.ThreatLevel)))
		if err := validate.Struct(a); err != nil {
			return Assessment{}, fmt.Errorf("invalid assessment: %w", err)
		}

		logrus.WithField("threat_level", a.ThreatLevel).Debug("message scanned")
		return a, nil
	}
	return Assessment{}, errors.New("model returned no assessment")
}

const systemPrompt = `You are a cybersecurity expert analyzing an email for potential threats. Look for:
1. Malicious or phishing links
2. Suspicious attachments or file requests
3. Social engineering tactics
4. Impersonation attempts
5. Urgency manipulation
6. Requests for sensitive information such as seed phrases or private keys

Report an overall threat level (SAFE, LOW, MEDIUM, HIGH, CRITICAL), the specific threats found,
a short explanation and recommendations for the user. Be concise but thorough. If the email is
safe, say so clearly.`

func (s *Scanner) callAPI(ctx context.Context, reqBody apiRequest) (*apiResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}

type apiRequest struct {
	Model      string         `json:"model"`
	MaxTokens  int            `json:"max_tokens"`
	System     string         `json:"system,omitempty"`
	Messages   []apiMessage   `json:"messages"`
	Tools      []apiTool      `json:"tools,omitempty"`
	ToolChoice *apiToolChoice `json:"tool_choice,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type apiToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type apiContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Content    []apiContentBlock `json:"content"`
	StopReason string            `json:"stop_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func assessmentTool() apiTool {
	stringList := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	return apiTool{
		Name:        reportTool,
		Description: "Report the security assessment of the email.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"threat_level": map[string]any{
					"type": "string",
					"enum": []string{"SAFE", "LOW", "MEDIUM", "HIGH", "CRITICAL"},
				},
				"threats_found":   stringList,
				"explanation":     map[string]any{"type": "string"},
				"recommendations": stringList,
			},
			"required": []string{"threat_level", "threats_found", "explanation", "recommendations"},
		},
	}
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"travelchat/internal/metrics"
	"travelchat/internal/model"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	currentDateToken   = "{{CURRENT_DATE}}"
	provisioningNotice = "Service agents are being provisioned"
	defaultAttachMIME  = "image/jpeg"
	maxErrorBodyBytes  = 64 << 10
)

var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var placeholderKeys = []string{"YOUR_PRIVATE_KEY_CONTENT_HERE", "PRIVATE_KEY_CONTENT_HERE"}

// ChatConfig locates the model and controls the retry loop.
type ChatConfig struct {
	ProjectID         string
	Location          string
	Model             string
	Endpoint          string
	SystemInstruction string

	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffBase    time.Duration
}

func (c *ChatConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 60 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.Location == "" {
		c.Location = "global"
	}
	if c.Endpoint == "" {
		c.Endpoint = "https://aiplatform.googleapis.com"
	}
}

// ChatService forwards questions to Vertex AI generateContent.
type ChatService struct {
	cfg     ChatConfig
	url     string
	client  *http.Client
	metrics *metrics.Recorder
	logger  *log.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewChatService checks cfg and returns model.ErrChatNotConfigured when it cannot be used.
// client must attach credentials to outgoing requests (see NewVertexHTTPClient).
func NewChatService(cfg ChatConfig, client *http.Client, rec *metrics.Recorder, logger *log.Logger) (*ChatService, error) {
	cfg.applyDefaults()
	if !projectIDPattern.MatchString(cfg.ProjectID) {
		return nil, fmt.Errorf("%w: invalid project id", model.ErrChatNotConfigured)
	}
	if strings.TrimSpace(cfg.SystemInstruction) == "" {
		return nil, fmt.Errorf("%w: system instruction is empty", model.ErrChatNotConfigured)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: no http client", model.ErrChatNotConfigured)
	}

	return &ChatService{
		cfg: cfg,
		url: fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
			strings.TrimSuffix(cfg.Endpoint, "/"), cfg.ProjectID, cfg.Location, cfg.Model),
		client:  client,
		metrics: rec,
		logger:  logger.WithPrefix("Chat"),
		now:     time.Now,
		sleep:   sleepContext,
	}, nil
}

// NewVertexHTTPClient returns an HTTP client that signs requests with a service-account token.
func NewVertexHTTPClient(ctx context.Context, credentialsJSON []byte, privateKey string) (*http.Client, error) {
	for _, p := range placeholderKeys {
		if strings.Contains(privateKey, p) {
			return nil, fmt.Errorf("%w: private key is a placeholder", model.ErrChatNotConfigured)
		}
	}

	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrChatNotConfigured, err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ===== Wire types =====

type filePart struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type contentPart struct {
	Text     string    `json:"text,omitempty"`
	FileData *filePart `json:"file_data,omitempty"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []contentPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	SystemInstruction content          `json:"system_instruction"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// BuildContents turns history and the current turn into the contents array.
// History turns missing either side are skipped.
func BuildContents(req model.ChatRequest) []content {
	contents := make([]content, 0, len(req.ChatHistory)*2+1)
	for _, turn := range req.ChatHistory {
		if turn.Question == "" || turn.Response == "" {
			continue
		}
		contents = append(contents,
			content{Role: "user", Parts: []contentPart{{Text: turn.Question}}},
			content{Role: "model", Parts: []contentPart{{Text: turn.Response}}},
		)
	}

	parts := []contentPart{{Text: req.Question}}
	for _, a := range req.Attachments {
		switch {
		case strings.HasPrefix(a.GCSURL, "gs://"):
			mime := a.Type
			if mime == "" {
				mime = defaultAttachMIME
			}
			parts = append(parts, contentPart{FileData: &filePart{MIMEType: mime, FileURI: a.GCSURL}})
		case a.Filename != "":
			parts = append(parts, contentPart{Text: fmt.Sprintf(
				"[Note: User attached an image file %q but it could not be processed by AI due to storage limitations.]", a.Filename)})
		}
	}
	return append(contents, content{Role: "user", Parts: parts})
}

func (s *ChatService) systemInstruction() string {
	date := s.now().UTC().Format("2006-01-02")
	return strings.ReplaceAll(s.cfg.SystemInstruction, currentDateToken, date)
}

// Ask sends the conversation and returns the model's first text part.
// Failures are *model.UpstreamError.
func (s *ChatService) Ask(ctx context.Context, req model.ChatRequest) (string, error) {
	if strings.TrimSpace(req.Question) == "" {
		return "", model.ErrQuestionRequired
	}

	body, err := json.Marshal(generateRequest{
		SystemInstruction: content{Parts: []contentPart{{Text: s.systemInstruction()}}},
		Contents:          BuildContents(req),
		GenerationConfig: generationConfig{
			Temperature:     0.7,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 2048,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	text, err := s.callWithRetry(ctx, body)
	result := "success"
	var uerr *model.UpstreamError
	if errors.As(err, &uerr) {
		result = uerr.Kind.String()
	}
	s.metrics.ObserveChat(result)
	return text, err
}

// attemptOutcome is the classification of one upstream call.
type attemptOutcome int

const (
	attemptSucceeded attemptOutcome = iota
	attemptProvisioning
	attemptTimedOut
	attemptFailed
)

// callWithRetry is the attempt state machine: provisioning retries with linear backoff until
// attempts run out, every other failure is terminal.
func (s *ChatService) callWithRetry(ctx context.Context, body []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		text, outcome, err := s.attempt(ctx, body)
		s.metrics.ObserveChatAttempt()

		switch outcome {
		case attemptSucceeded:
			if attempt > 1 {
				s.logger.Info("succeeded after retry", "attempt", attempt)
			}
			return text, nil
		case attemptTimedOut:
			s.logger.Warn("attempt timed out", "attempt", attempt, "err", err)
			return "", &model.UpstreamError{Kind: model.UpstreamTimeout, Attempts: attempt, Err: err}
		case attemptFailed:
			s.logger.Error("attempt failed", "attempt", attempt, "err", err)
			return "", &model.UpstreamError{Kind: model.UpstreamUnavailable, Attempts: attempt, Err: err}
		}

		lastErr = err
		if attempt == s.cfg.MaxAttempts {
			break
		}
		wait := s.cfg.BackoffBase * time.Duration(attempt)
		s.logger.Warn("model provisioning, retrying", "attempt", attempt, "wait", wait)
		if err := s.sleep(ctx, wait); err != nil {
			return "", &model.UpstreamError{Kind: model.UpstreamUnavailable, Attempts: attempt, Err: err}
		}
	}
	return "", &model.UpstreamError{Kind: model.UpstreamProvisioning, Attempts: s.cfg.MaxAttempts, Err: lastErr}
}

func (s *ChatService) attempt(ctx context.Context, body []byte) (string, attemptOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", attemptFailed, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", attemptTimedOut, err
		}
		return "", attemptFailed, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		err := fmt.Errorf("generateContent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		return "", classifyFailure(raw), err
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", attemptTimedOut, err
		}
		return "", attemptFailed, fmt.Errorf("decode response: %w", err)
	}

	text := firstText(out)
	if text == "" {
		return "", attemptFailed, errors.New("response has no text")
	}
	return text, attemptSucceeded, nil
}

// classifyFailure reads the structured error body and falls back to a text search.
func classifyFailure(raw []byte) attemptOutcome {
	var body apiError
	if err := json.Unmarshal(raw, &body); err == nil && strings.Contains(body.Error.Message, provisioningNotice) {
		return attemptProvisioning
	}
	// Non-JSON bodies and JSON with any status still retry on the notice text.
	if bytes.Contains(raw, []byte(provisioningNotice)) {
		return attemptProvisioning
	}
	return attemptFailed
}

func firstText(resp generateResponse) string {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return resp.Candidates[0].Content.Parts[0].Text
}

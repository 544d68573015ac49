package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bft-labs/logship/internal/domain"
	"github.com/bft-labs/logship/internal/ports"
)

const (
	rawEventsEndpoint = "/api/events/raw"

	// ContentType is the media type of newline-delimited compact events.
	ContentType = "application/vnd.serilog.clef"

	apiKeyHeader       = "X-Seq-ApiKey"
	minimumLevelHeader = "X-Seq-MinimumLevelAccepted"
	availableHeader    = "X-Seq-Ingestion-Available"

	maxResponseBody = 1 << 20
)

// Ingester implements ports.Ingester against a raw events endpoint.
type Ingester struct {
	client ports.HTTPClient
	logger ports.Logger
}

// NewIngester creates a new HTTP ingester.
func NewIngester(client ports.HTTPClient, logger ports.Logger) *Ingester {
	return &Ingester{
		client: client,
		logger: logger,
	}
}

// responseBody is the subset of the ingestion response the client reads.
type responseBody struct {
	MinimumLevelAccepted json.RawMessage    `json:"MinimumLevelAccepted"`
	Rejected             []domain.ItemError `json:"Rejected"`
}

// Post sends one request carrying the whole batch and classifies the answer.
func (s *Ingester) Post(ctx context.Context, batch *domain.Batch, metadata ports.PostMetadata) domain.Outcome {
	url := strings.TrimRight(metadata.ServerURL, "/") + rawEventsEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(batch.Payload()))
	if err != nil {
		return domain.Outcome{Kind: domain.OutcomeRejected, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Content-Type", ContentType)
	if metadata.APIKey != "" {
		req.Header.Set(apiKeyHeader, metadata.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Outcome{Kind: domain.OutcomeTransient, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil && resp.StatusCode/100 == 2 {
		s.logger.Debug("failed to read response body", ports.Err(err))
	}

	out := domain.Outcome{StatusCode: resp.StatusCode}
	var body responseBody
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &body) == nil {
		out.Rejected = body.Rejected
	}
	out.Directive = s.parseDirective(resp.Header, body.MinimumLevelAccepted)
	out.Available = parseAvailable(resp.Header)

	switch code := resp.StatusCode; {
	case code/100 == 2:
		out.Kind = domain.OutcomeAccepted
	case code == http.StatusTooManyRequests || code >= 500 || code < 200 || code/100 == 3:
		out.Kind = domain.OutcomeTransient
		out.Err = statusError(code, raw)
	default:
		out.Kind = domain.OutcomeRejected
		out.Err = statusError(code, raw)
	}
	return out
}

// parseDirective reads the server's minimum level from the response header,
// falling back to the body. A present but empty value clears the level.
func (s *Ingester) parseDirective(h http.Header, bodyLevel json.RawMessage) *domain.LevelDirective {
	if values, ok := h[http.CanonicalHeaderKey(minimumLevelHeader)]; ok {
		return s.directive(strings.TrimSpace(strings.Join(values, "")))
	}
	if len(bodyLevel) == 0 {
		return nil
	}
	if string(bodyLevel) == "null" {
		return &domain.LevelDirective{}
	}
	var text string
	if err := json.Unmarshal(bodyLevel, &text); err != nil {
		s.logger.Debug("ignoring malformed minimum level", ports.String("value", string(bodyLevel)))
		return nil
	}
	return s.directive(text)
}

func (s *Ingester) directive(text string) *domain.LevelDirective {
	if text == "" {
		return &domain.LevelDirective{}
	}
	level, err := domain.ParseLevel(text)
	if err != nil {
		s.logger.Debug("ignoring unknown minimum level", ports.String("value", text))
		return nil
	}
	return &domain.LevelDirective{Level: &level}
}

func parseAvailable(h http.Header) *bool {
	v := h.Get(availableHeader)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

func statusError(code int, body []byte) error {
	return fmt.Errorf("server returned %d: %s", code, strings.TrimSpace(string(body)))
}

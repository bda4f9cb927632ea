package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"applier/orchestrator"
)

// HTTPOracle asks an external answer service over HTTP. Any transport or
// non-2xx failure surfaces as an error; the orchestrator absorbs that into
// a confidence-0 result.
type HTTPOracle struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPOracle(endpoint string, timeout time.Duration) *HTTPOracle {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPOracle{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type askRequest struct {
	Question   string `json:"question"`
	JobContext string `json:"job_context,omitempty"`
}

type askResponse struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

func (o *HTTPOracle) Ask(ctx context.Context, question, jobContext string) (orchestrator.Answer, error) {
	body, err := json.Marshal(askRequest{Question: question, JobContext: jobContext})
	if err != nil {
		return orchestrator.Answer{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return orchestrator.Answer{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return orchestrator.Answer{}, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return orchestrator.Answer{}, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var decoded askResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return orchestrator.Answer{}, fmt.Errorf("oracle response decode failed: %w", err)
	}

	if decoded.Confidence < 0 {
		decoded.Confidence = 0
	}
	if decoded.Confidence > 1 {
		decoded.Confidence = 1
	}
	return orchestrator.Answer{Text: decoded.Answer, Confidence: decoded.Confidence}, nil
}

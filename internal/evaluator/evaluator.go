// Package evaluator is the boundary to the external analysis engine. The
// engine is a black box that accepts a repository identifier, credentials, and
// a rubric prompt, and returns a structured score document after consuming
// some number of processing turns.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// ErrEvaluationTimeout marks an evaluation that was aborted by its deadline or
// terminated externally. Callers treat it as a time-limit problem, not bad input.
var ErrEvaluationTimeout = errors.New("evaluation timed out or was externally terminated")

const maxResponseBodyBytes = 1 << 20 // engine documents are small; cap reads

// Options configures the engine client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Timeout bounds one evaluation. It must be shorter than the queue's
	// visibility timeout so an abandoned call never outlives its lease.
	Timeout time.Duration

	// MaxTurns caps the engine's processing turns per evaluation.
	MaxTurns int

	// ExpectedItems is the rubric criterion count a returned document must
	// match exactly. Zero disables the length check.
	ExpectedItems int
}

// Client calls the engine over HTTP and validates the returned document.
type Client struct {
	baseURL       string
	http          *http.Client
	logger        *slog.Logger
	timeout       time.Duration
	maxTurns      int
	expectedItems int
}

// NewClient constructs an engine client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("engine base url is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &Client{
		baseURL:       opts.BaseURL,
		http:          hc,
		logger:        logger.With("component", "evaluator"),
		timeout:       timeout,
		maxTurns:      maxTurns,
		expectedItems: opts.ExpectedItems,
	}, nil
}

type evaluateRequest struct {
	Repository string `json:"repository"`
	Rubric     string `json:"rubric"`
	MaxTurns   int    `json:"max_turns"`
}

type evaluateResponse struct {
	model.ScoreDocument
	Turns      int     `json:"turns"`
	CostUSD    float64 `json:"cost_usd"`
	DurationMs int64   `json:"duration_ms"`
}

// Evaluate runs one evaluation under the client's timeout. A deadline
// expiry maps to ErrEvaluationTimeout; any document failing validation is an
// error, never a partial success.
func (c *Client) Evaluate(ctx context.Context, params core.EvaluateParams) (*core.EvaluationOutcome, error) {
	if params.Repository == "" {
		return nil, errors.New("repository is required")
	}
	if params.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if params.Rubric == "" {
		return nil, errors.New("rubric is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(evaluateRequest{
		Repository: params.Repository,
		Rubric:     params.Rubric,
		MaxTurns:   c.maxTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal evaluate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/evaluations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+params.APIKey)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrEvaluationTimeout, c.timeout)
		}
		return nil, fmt.Errorf("call engine: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrEvaluationTimeout, c.timeout)
		}
		return nil, fmt.Errorf("read engine response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d: %s", resp.StatusCode, truncate(raw, 256))
	}

	var out evaluateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	if err := out.ScoreDocument.Validate(c.expectedItems); err != nil {
		return nil, fmt.Errorf("engine returned invalid document: %w", err)
	}

	elapsed := time.Since(started)
	durationMs := out.DurationMs
	if durationMs == 0 {
		durationMs = elapsed.Milliseconds()
	}

	c.logger.DebugContext(ctx, "evaluation finished",
		"repository", params.Repository,
		"total_score", out.TotalScore,
		"turns", out.Turns,
		"duration_ms", durationMs)

	return &core.EvaluationOutcome{
		Document: out.ScoreDocument,
		Metadata: model.EvaluationMetadata{
			Turns:      out.Turns,
			CostUSD:    out.CostUSD,
			DurationMs: durationMs,
		},
	}, nil
}

// Timeout reports the per-evaluation deadline, used by config sanity checks
// against the queue visibility timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

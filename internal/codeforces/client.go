package codeforces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/contest-leaderboard/internal/config"
	"github.com/contest-leaderboard/internal/domain"
)

const statusOK = "OK"

// envelope is the wrapper of every API response
type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

type apiProblem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Rating    *int     `json:"rating"`
	Tags      []string `json:"tags"`
}

type apiSubmission struct {
	ID                  int64      `json:"id"`
	CreationTimeSeconds int64      `json:"creationTimeSeconds"`
	Problem             apiProblem `json:"problem"`
	Verdict             string     `json:"verdict"`
}

// Client talks to the Codeforces public API
type Client struct {
	httpClient *http.Client
	config     *config.JudgeConfig
	logger     *slog.Logger
}

// NewClient creates a new Codeforces API client
func NewClient(cfg *config.JudgeConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger,
	}
}

// FetchCatalog returns the full problem set
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.Problem, error) {
	var result struct {
		Problems []apiProblem `json:"problems"`
	}
	if err := c.call(ctx, "problemset.problems", nil, &result); err != nil {
		return nil, err
	}

	problems := make([]domain.Problem, 0, len(result.Problems))
	for _, p := range result.Problems {
		problems = append(problems, domain.Problem{
			ID:     domain.ProblemID(p.ContestID, p.Index),
			Name:   p.Name,
			Rating: p.Rating,
			Tags:   p.Tags,
		})
	}
	return problems, nil
}

// FetchSubmissions returns the handle's most recent submissions, newest first
func (c *Client) FetchSubmissions(ctx context.Context, handle string) ([]domain.Submission, error) {
	params := url.Values{}
	params.Set("handle", handle)
	params.Set("from", "1")
	params.Set("count", strconv.Itoa(c.config.RecentWindow))

	var result []apiSubmission
	if err := c.call(ctx, "user.status", params, &result); err != nil {
		return nil, err
	}

	subs := make([]domain.Submission, 0, len(result))
	for _, s := range result {
		subs = append(subs, domain.Submission{
			ID:          s.ID,
			ProblemID:   domain.ProblemID(s.Problem.ContestID, s.Problem.Index),
			Verdict:     s.Verdict,
			SubmittedAt: time.Unix(s.CreationTimeSeconds, 0).UTC(),
		})
	}
	return subs, nil
}

// VerifyHandle reports domain.ErrNotFound when the handle does not exist
func (c *Client) VerifyHandle(ctx context.Context, handle string) error {
	params := url.Values{}
	params.Set("handles", handle)

	var result []json.RawMessage
	if err := c.call(ctx, "user.info", params, &result); err != nil {
		return err
	}
	if len(result) == 0 {
		return fmt.Errorf("handle %s: %w", handle, domain.ErrNotFound)
	}
	return nil
}

// call performs one API method with retries on transport failures and server errors.
// Rejections by the API are not retried.
func (c *Client) call(ctx context.Context, method string, params url.Values, result any) error {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var env envelope
	operation := func() error {
		var err error
		env, err = c.get(ctx, endpoint)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying judge request",
			"method", method,
			"wait", wait,
			"error", err,
		)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidRequest) {
			return fmt.Errorf("%s: %w", method, err)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrExternalUnavailable, method, err)
	}

	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("%w: decoding %s result: %v", domain.ErrExternalUnavailable, method, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) (envelope, error) {
	var env envelope

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return env, backoff.Permanent(fmt.Errorf("building request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return env, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return env, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return env, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if env.Status != statusOK {
		if strings.Contains(strings.ToLower(env.Comment), "not found") {
			return env, backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrNotFound, env.Comment))
		}
		return env, backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrInvalidRequest, env.Comment))
	}
	return env, nil
}

package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// SecretHeader carries the shared secret to the automation server.
const SecretHeader = "X-Internal-Secret"

// DefaultTimeout bounds a single webhook call.
const DefaultTimeout = 10 * time.Second

// DefaultMaxResponseBytes caps how much of a webhook response is read.
const DefaultMaxResponseBytes = 10 << 20

// OutcomeKind classifies the result of a webhook call.
type OutcomeKind int

const (
	// OutcomeSuccess means the server answered with a status below 400.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRemoteError means the server answered with a status of 400 or more.
	OutcomeRemoteError
	// OutcomeTimeout means no complete response arrived before the deadline.
	OutcomeTimeout
	// OutcomeTransportError means the connection failed.
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRemoteError:
		return "remote_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of one delivery attempt.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte
	Err        error
	Duration   time.Duration
}

// DelivererConfig configures a Deliverer.
type DelivererConfig struct {
	Secret           string
	Timeout          time.Duration
	MaxResponseBytes int64
	// Transport is the outbound round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// ErrResponseTooLarge reports a remote body larger than MaxResponseBytes.
var ErrResponseTooLarge = errors.New("workflow response too large")

// Deliverer posts enriched payloads to webhook URLs.
type Deliverer struct {
	client   *http.Client
	secret   string
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

// NewDeliverer creates a deliverer. Redirects are never followed.
func NewDeliverer(cfg DelivererConfig) *Deliverer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Deliverer{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		secret:   cfg.Secret,
		timeout:  timeout,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Deliver performs exactly one POST of payload to target. Network failures
// are reported through the Outcome; the returned error is reserved for faults
// in building the request itself.
func (d *Deliverer) Deliver(ctx context.Context, target string, payload EnrichedPayload) (*Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal enriched payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set(SecretHeader, d.secret)
	}

	d.logger.InfoContext(ctx, "proxying workflow trigger", slog.String("url", target))
	d.logger.DebugContext(ctx, "workflow payload", slog.String("body", string(body)))

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return failedOutcome(err, time.Since(start)), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return failedOutcome(fmt.Errorf("read response: %w", err), time.Since(start)), nil
	}
	if int64(len(respBody)) > d.maxBytes {
		// A truncated body would be relayed as a mangled success.
		return failedOutcome(fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, d.maxBytes), time.Since(start)), nil
	}

	outcome := &Outcome{
		Kind:       OutcomeSuccess,
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Duration:   time.Since(start),
	}
	if resp.StatusCode >= http.StatusBadRequest {
		outcome.Kind = OutcomeRemoteError
	}

	d.logger.InfoContext(ctx, "workflow response", slog.Int("status", resp.StatusCode))

	return outcome, nil
}

func failedOutcome(err error, elapsed time.Duration) *Outcome {
	kind := OutcomeTransportError
	if isTimeout(err) {
		kind = OutcomeTimeout
	}
	return &Outcome{Kind: kind, Err: err, Duration: elapsed}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

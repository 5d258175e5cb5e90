package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const userAgent = "deposit-bot/1.0 (+https://github.com/opencitations/crowdsourcing)"

var retriesCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "github_request_retries_total",
		Help: "Retries of issue tracker requests by cause.",
	},
	[]string{"cause"},
)

func init() {
	prometheus.MustRegister(retriesCounter)
}

// agentTransport setzt Header, die jede Anfrage an die API braucht.
type agentTransport struct {
	Transport http.RoundTripper
	Token     string
}

func (t *agentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}
	return t.Transport.RoundTrip(req)
}

// Response ist eine erfolgreiche oder als "nicht gefunden" markierte Antwort.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	NotFound   bool
}

// Decode entpackt den JSON-Body.
func (r *Response) Decode(v any) error {
	if r.NotFound || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Client ist der wiederholende HTTP-Client für die Issue-Tracker-API.
type Client struct {
	BaseURL    string
	Repository string
	HTTP       *http.Client
	Policy     Policy
	Logger     *zap.Logger
}

// NewClient erstellt einen Client mit Standard-Policy.
func NewClient(baseURL, repository, token string, logger *zap.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Repository: repository,
		HTTP: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &agentTransport{Transport: http.DefaultTransport, Token: token},
		},
		Policy: DefaultPolicy(),
		Logger: logger,
	}
}

// Request führt eine Anfrage mit Wiederholungen aus.
//
// 2xx liefert die Antwort, 404 eine Antwort mit NotFound. Ein 403 mit
// X-RateLimit-Remaining: 0 und gültigem X-RateLimit-Reset wartet bis zum Reset
// und verbraucht keinen Versuch. Liegt der Reset wiederholt in der Vergangenheit,
// zählt jede weitere solche Antwort als Versuch mit Pause Policy.Delay. Ohne
// lesbaren Reset wird die Antwort wie jeder andere unerwartete Status behandelt.
// Timeouts verbrauchen einen Versuch ohne Pause, andere Transportfehler
// verbrauchen einen Versuch und warten Policy.Delay.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body any) (*Response, error) {
	policy := c.Policy.withDefaults()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	target := c.BaseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	log := c.Logger.With(zap.String("method", method), zap.String("url", target))

	var lastErr error
	attempts := 0
	staleResets := 0
	for attempts < policy.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, method, target, payload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			attempts++
			lastErr = err
			if isTimeout(err) {
				retriesCounter.WithLabelValues("timeout").Inc()
				log.Warn("Request timed out", zap.Int("attempt", attempts), zap.Error(err))
				continue
			}
			retriesCounter.WithLabelValues("connection").Inc()
			log.Warn("Connection error", zap.Int("attempt", attempts), zap.Error(err))
			if attempts < policy.MaxAttempts {
				if err := policy.Sleep(ctx, policy.Delay); err != nil {
					return nil, err
				}
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusAccepted,
			resp.StatusCode == http.StatusNoContent:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound:
			return &Response{StatusCode: resp.StatusCode, Header: resp.Header, NotFound: true}, nil
		case isRateLimited(resp):
			reset, ok := rateLimitReset(resp.Header)
			if !ok {
				attempts++
				lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
				retriesCounter.WithLabelValues("status").Inc()
				log.Warn("Rate limited without reset time", zap.Int("attempt", attempts))
				continue
			}
			wait := policy.rateLimitWait(reset)
			if wait == 0 {
				staleResets++
				if staleResets > 1 {
					attempts++
					lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
					retriesCounter.WithLabelValues("rate_limit").Inc()
					log.Warn("Rate limit reset already passed", zap.Int("attempt", attempts))
					if attempts < policy.MaxAttempts {
						if err := policy.Sleep(ctx, policy.Delay); err != nil {
							return nil, err
						}
					}
					continue
				}
			}
			retriesCounter.WithLabelValues("rate_limit").Inc()
			log.Info("Rate limit exhausted, waiting for reset", zap.Duration("wait", wait))
			if err := policy.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		default:
			attempts++
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
			retriesCounter.WithLabelValues("status").Inc()
			log.Warn("Unexpected status", zap.Int("status", resp.StatusCode), zap.Int("attempt", attempts))
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	return nil, &ExhaustedRetriesError{Attempts: attempts, Err: lastErr}
}

func (c *Client) doOnce(ctx context.Context, method, target string, payload []byte) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}

func isRateLimited(resp *Response) bool {
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// rateLimitReset liest X-RateLimit-Reset als Unix-Zeit; fehlt der Header oder ist er unlesbar, ist ok false.
func rateLimitReset(h http.Header) (reset int64, ok bool) {
	v := h.Get("X-RateLimit-Reset")
	if v == "" {
		return 0, false
	}
	reset, err := strconv.ParseInt(v, 10, 64)
	if err != nil || reset <= 0 {
		return 0, false
	}
	return reset, true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

package github

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhaustedRetries wird gemeldet, wenn alle Versuche aufgebraucht sind.
var ErrExhaustedRetries = errors.New("retries exhausted")

// ExhaustedRetriesError trägt die Anzahl der Versuche und den letzten Fehler.
type ExhaustedRetriesError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Err }

func (e *ExhaustedRetriesError) Is(target error) bool { return target == ErrExhaustedRetries }

// HTTPError ist eine Antwort mit unerwartetem Status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("github api error: status=%d body=%s", e.StatusCode, e.Body)
}

// HTTPStatusCode gibt den Statuscode zurück.
func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// Policy legt Versuche und Wartezeiten fest. Now und Sleep sind für Tests austauschbar.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy: 3 Versuche, 5 Sekunden Pause nach Verbindungsfehlern.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
		Now:         time.Now,
		Sleep:       sleepContext,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.Now == nil {
		p.Now = d.Now
	}
	if p.Sleep == nil {
		p.Sleep = d.Sleep
	}
	return p
}

// rateLimitWait berechnet die Wartezeit bis zum Reset, nie negativ.
func (p Policy) rateLimitWait(resetUnix int64) time.Duration {
	wait := time.Unix(resetUnix, 0).Sub(p.Now())
	if wait < 0 {
		return 0
	}
	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

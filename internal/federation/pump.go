package federation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tezrelay/relay/internal/identity"
	"github.com/tezrelay/relay/internal/models"
	"github.com/tezrelay/relay/internal/signature"
)

// Pump is the background delivery loop: it claims queued outbound
// deliveries in batches, signs each bundle with the relay's own identity,
// POSTs it to the target host's inbox, and records the outcome.
type Pump struct {
	Queue    *Queue
	Identity *identity.Service
	Client   *http.Client
	Logger   *slog.Logger

	// BatchSize bounds how many deliveries are claimed per tick.
	BatchSize int
	// Interval is how often the pump polls for due deliveries.
	Interval time.Duration
	// BackoffCeiling caps the retry delay MarkFailed schedules.
	BackoffCeiling time.Duration
}

// NewPump constructs a Pump with a batch size of 25, a 2s poll interval,
// and a 15s HTTP client timeout.
func NewPump(queue *Queue, id *identity.Service, logger *slog.Logger, backoffCeiling time.Duration) *Pump {
	return &Pump{
		Queue:          queue,
		Identity:       id,
		Client:         &http.Client{Timeout: 15 * time.Second},
		Logger:         logger,
		BatchSize:      25,
		Interval:       2 * time.Second,
		BackoffCeiling: backoffCeiling,
	}
}

// Run polls for due deliveries and processes them until ctx is canceled.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick claims one batch of due deliveries and processes each independently;
// a failure delivering to one host never blocks the others.
func (p *Pump) tick(ctx context.Context) {
	deliveries, err := p.Queue.ClaimBatch(ctx, p.BatchSize)
	if err != nil {
		p.Logger.Error("federation pump: claiming batch", slog.String("error", err.Error()))
		return
	}

	for _, d := range deliveries {
		if ctx.Err() != nil {
			return
		}
		p.deliver(ctx, d)
	}
}

// deliver signs and POSTs a single delivery's bundle, then records the
// outcome. A 2xx response marks the delivery sent. A 4xx response is
// treated as permanent (the peer rejected the payload outright and retrying
// the same bytes will not help); anything else — 5xx, timeout, connection
// refused — schedules a backoff retry.
func (p *Pump) deliver(ctx context.Context, d models.OutboundDelivery) {
	id := p.Identity.Current()
	body := []byte(d.Bundle)

	url := fmt.Sprintf("https://%s/federation/inbox", d.TargetHost)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		p.Logger.Error("federation pump: building request",
			slog.String("target", d.TargetHost), slog.String("error", err.Error()))
		p.markFailed(ctx, d, false)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Host = d.TargetHost

	signed := signature.Sign(http.MethodPost, "/federation/inbox", d.TargetHost, body, id.ServerID, id.PrivateKey)
	signed.Apply(req)

	resp, err := p.Client.Do(req)
	if err != nil {
		p.Logger.Warn("federation pump: delivery failed",
			slog.String("target", d.TargetHost), slog.String("delivery_id", d.ID.String()), slog.String("error", err.Error()))
		p.markFailed(ctx, d, false)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := p.Queue.MarkSent(ctx, d.ID); err != nil {
			p.Logger.Error("federation pump: marking sent", slog.String("error", err.Error()))
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		p.Logger.Warn("federation pump: peer rejected delivery",
			slog.String("target", d.TargetHost), slog.Int("status", resp.StatusCode))
		p.markFailed(ctx, d, true)
	default:
		p.Logger.Warn("federation pump: peer error, will retry",
			slog.String("target", d.TargetHost), slog.Int("status", resp.StatusCode))
		p.markFailed(ctx, d, false)
	}
}

func (p *Pump) markFailed(ctx context.Context, d models.OutboundDelivery, permanent bool) {
	if err := p.Queue.MarkFailed(ctx, d.ID, d.Attempts, permanent, p.BackoffCeiling); err != nil {
		p.Logger.Error("federation pump: recording failure", slog.String("error", err.Error()))
	}
}

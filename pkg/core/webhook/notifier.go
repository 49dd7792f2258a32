// Package webhook delivers post-commit notifications to registered HTTP
// endpoints. Deliveries are signed when the endpoint has a secret, fanned
// out in parallel, wrapped in a per-endpoint circuit breaker, and
// re-queued in process on failure.
// Webhook failures never affect a committed calculation.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/metrics"
)

// Endpoint is one webhook destination.
type Endpoint struct {
	URL    string
	Secret string
}

// delivery is one queued attempt.
type delivery struct {
	endpoint Endpoint
	payload  []byte
	attempt  int
}

// MaxQueuedDeliveries bounds the in-process retry queue; beyond it,
// failed deliveries are dropped and counted.
const MaxQueuedDeliveries = 1000

// MaxDeliveryAttempts bounds redelivery of one payload.
const MaxDeliveryAttempts = 3

// Notifier fans out signed notifications.
type Notifier struct {
	client   *resty.Client
	recorder *metrics.Recorder
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	queue chan delivery
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewNotifier builds a notifier and starts its retry worker.
func NewNotifier(recorder *metrics.Recorder, logger *zap.Logger) *Notifier {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0) // retries go through the notifier's own queue

	n := &Notifier{
		client:   client,
		recorder: recorder,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		queue:    make(chan delivery, MaxQueuedDeliveries),
		done:     make(chan struct{}),
	}
	n.wg.Add(1)
	go n.retryLoop()
	return n
}

// Notify fans the payload out to every endpoint in parallel and returns
// once every first attempt has resolved. Failed attempts are re-queued.
func (n *Notifier) Notify(ctx context.Context, endpoints []Endpoint, payload []byte) {
	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep Endpoint) {
			defer wg.Done()
			n.attempt(ctx, delivery{endpoint: ep, payload: payload, attempt: 1})
		}(ep)
	}
	wg.Wait()
}

// Close stops the retry worker. Queued deliveries are abandoned.
func (n *Notifier) Close() {
	close(n.done)
	n.wg.Wait()
}

func (n *Notifier) attempt(ctx context.Context, d delivery) {
	br := n.breaker(d.endpoint.URL)
	_, err := br.Execute(func() (interface{}, error) {
		return nil, n.send(ctx, d.endpoint, d.payload)
	})
	if err == nil {
		n.recorder.WebhookOutcome("delivered")
		return
	}

	n.logger.Warn("webhook delivery failed",
		zap.String("url", d.endpoint.URL),
		zap.Int("attempt", d.attempt),
		zap.Error(err))

	if d.attempt >= MaxDeliveryAttempts {
		n.recorder.WebhookOutcome("failed")
		return
	}
	d.attempt++
	select {
	case n.queue <- d:
		n.recorder.WebhookOutcome("retried")
	default:
		n.recorder.WebhookOutcome("failed")
		n.logger.Warn("webhook retry queue full, dropping delivery",
			zap.String("url", d.endpoint.URL))
	}
}

func (n *Notifier) send(ctx context.Context, ep Endpoint, payload []byte) error {
	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Delivery-Id", uuid.NewString()).
		SetBody(payload)
	// Unsecured endpoints get no signature header at all.
	if ep.Secret != "" {
		req.SetHeader("X-Signature", Sign(ep.Secret, payload))
	}
	resp, err := req.Post(ep.URL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode())
	}
	return nil
}

// retryLoop replays queued deliveries with exponential backoff by attempt.
func (n *Notifier) retryLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case d := <-n.queue:
			backoff := time.Duration(1<<uint(d.attempt-1)) * time.Second
			select {
			case <-n.done:
				return
			case <-time.After(backoff):
			}
			n.attempt(context.Background(), d)
		}
	}
}

func (n *Notifier) breaker(url string) *gobreaker.CircuitBreaker {
	n.mu.Lock()
	defer n.mu.Unlock()
	if br, ok := n.breakers[url]; ok {
		return br
	}
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    url,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	n.breakers[url] = br
	return br
}

// Sign computes the hex HMAC-SHA-256 of the payload under the endpoint
// secret; receivers verify it from the X-Signature header.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

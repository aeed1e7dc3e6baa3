// Package notify persists lifecycle notifications and delivers them to webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/jml/internal/models"
	"github.com/fentz26/jml/internal/store"
)

// DefaultTimeout bounds a single webhook request.
const DefaultTimeout = 10 * time.Second

// Outbox is the notification storage the dispatcher writes to.
type Outbox interface {
	CreateNotification(ctx context.Context, tenantID, topic string, payload map[string]any) (*models.Notification, error)
	ListNotifications(ctx context.Context, f store.NotificationFilter) ([]models.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id string) error
}

// Webhook is a subscriber endpoint. Empty Topics subscribes to everything;
// an entry ending in ".*" matches a topic prefix.
type Webhook struct {
	URL    string
	Topics []string
}

func (w Webhook) wants(topic string) bool {
	if len(w.Topics) == 0 {
		return true
	}
	for _, t := range w.Topics {
		if t == topic {
			return true
		}
		if strings.HasSuffix(t, ".*") && strings.HasPrefix(topic, strings.TrimSuffix(t, "*")) {
			return true
		}
	}
	return false
}

// Dispatcher creates notifications and delivers them to webhook subscribers.
// Delivery runs in the background so a slow subscriber never holds up the
// task that emitted the notification.
type Dispatcher struct {
	outbox   Outbox
	webhooks []Webhook
	client   *http.Client

	mu      sync.Mutex
	sending map[string]bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher backed by the given outbox.
func NewDispatcher(outbox Outbox, webhooks []Webhook, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		outbox:   outbox,
		webhooks: webhooks,
		client:   &http.Client{Timeout: timeout},
		sending:  make(map[string]bool),
	}
}

// Emit persists a notification and starts sending it to matching
// subscribers. It returns once the notification is stored. Failures are
// logged and never reported to the caller.
func (d *Dispatcher) Emit(ctx context.Context, topic, tenantID string, payload map[string]any) {
	n, err := d.outbox.CreateNotification(ctx, tenantID, topic, payload)
	if err != nil {
		log.Printf("notify: failed to store %s: %v", topic, err)
		return
	}
	if len(d.webhooks) == 0 || !d.claim(n.ID) {
		return
	}

	// The emitting request may finish first; the client timeout bounds delivery.
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.unclaim(n.ID)
		d.deliver(ctx, n)
	}()
}

// Wait blocks until background deliveries started by Emit have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Pending lists notifications of a tenant not yet delivered to every subscriber.
func (d *Dispatcher) Pending(ctx context.Context, tenantID string) ([]models.Notification, error) {
	undelivered := false
	return d.outbox.ListNotifications(ctx, store.NotificationFilter{TenantID: tenantID, Delivered: &undelivered})
}

// Flush retries delivery of every undelivered notification and returns how
// many were delivered. It is a no-op without webhooks.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	if len(d.webhooks) == 0 {
		return 0, nil
	}
	pending, err := d.Pending(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list pending notifications: %w", err)
	}
	delivered := 0
	for i := range pending {
		n := &pending[i]
		// Skip notifications a background delivery is still working on.
		if !d.claim(n.ID) {
			continue
		}
		if d.deliver(ctx, n) {
			delivered++
		}
		d.unclaim(n.ID)
	}
	return delivered, nil
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sending[id] {
		return false
	}
	d.sending[id] = true
	return true
}

func (d *Dispatcher) unclaim(id string) {
	d.mu.Lock()
	delete(d.sending, id)
	d.mu.Unlock()
}

// deliver posts n to each subscribed webhook and marks it delivered when
// at least one subscriber exists and all of them accepted it.
func (d *Dispatcher) deliver(ctx context.Context, n *models.Notification) bool {
	body, err := json.Marshal(n)
	if err != nil {
		log.Printf("notify: failed to encode %s: %v", n.ID, err)
		return false
	}

	sent, failed := 0, 0
	for _, w := range d.webhooks {
		if !w.wants(n.Topic) {
			continue
		}
		if err := d.SendWebhook(ctx, w.URL, body); err != nil {
			log.Printf("notify: webhook %s failed for %s: %v", w.URL, n.Topic, err)
			failed++
			continue
		}
		sent++
	}
	if sent == 0 || failed > 0 {
		return false
	}

	if err := d.outbox.MarkNotificationDelivered(ctx, n.ID); err != nil {
		log.Printf("notify: failed to mark %s delivered: %v", n.ID, err)
		return false
	}
	n.Delivered = true
	return true
}

// SendWebhook POSTs payload to the given URL.
func (d *Dispatcher) SendWebhook(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

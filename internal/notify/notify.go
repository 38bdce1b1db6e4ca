// Package notify delivers event log entries to webhook endpoints.
//
// Each hook tracks its own position in the log. A hook starts at the newest event present on its
// first poll, so only events written after startup are delivered. A failed delivery stops that
// hook's batch; the event is retried on the next poll.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"compliancekit/internal/config"
	"compliancekit/internal/domain"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultBatchSize = 100
	maxParallelHooks = 4
)

// Delivery headers.
const (
	HeaderEvent     = "X-ComplianceKit-Event"
	HeaderDelivery  = "X-ComplianceKit-Delivery"
	HeaderSignature = "X-ComplianceKit-Signature"
)

// EventSource reads the shared event log.
type EventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Payload is the JSON body posted for each event.
type Payload struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	OwnerID    string          `json:"owner_id"`
	TS         string          `json:"ts"`
	Data       json.RawMessage `json:"data"`
}

type hook struct {
	cfg    config.WebhookConfig
	client *http.Client
	cursor int64
	primed bool
}

type Dispatcher struct {
	Interval  time.Duration
	BatchSize int

	src   EventSource
	log   zerolog.Logger
	mu    sync.Mutex
	hooks []*hook
}

// New returns a dispatcher for the enabled hooks in cfgs.
func New(src EventSource, cfgs []config.WebhookConfig, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		Interval:  DefaultInterval,
		BatchSize: DefaultBatchSize,
		src:       src,
		log:       log.With().Str("component", "webhooks").Logger(),
	}
	for _, c := range cfgs {
		if !c.IsEnabled() || strings.TrimSpace(c.URL) == "" {
			continue
		}
		timeout := time.Duration(c.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		d.hooks = append(d.hooks, &hook{cfg: c, client: &http.Client{Timeout: timeout}})
	}
	return d
}

// Len returns the number of active hooks.
func (d *Dispatcher) Len() int { return len(d.hooks) }

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	if len(d.hooks) == 0 {
		return
	}
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	d.log.Info().Int("hooks", len(d.hooks)).Dur("interval", interval).Msg("webhook dispatcher started")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		d.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Poll delivers pending events to every hook once. Hooks are served in parallel; events for one
// hook are delivered in log order.
func (d *Dispatcher) Poll(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var g errgroup.Group
	g.SetLimit(maxParallelHooks)
	for _, h := range d.hooks {
		g.Go(func() error {
			d.drain(ctx, h)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) drain(ctx context.Context, h *hook) {
	log := d.log.With().Str("url", h.cfg.URL).Logger()
	if !h.primed {
		latest, err := d.src.LatestEventID(ctx)
		if err != nil {
			log.Error().Err(err).Msg("read event log position")
			return
		}
		h.cursor, h.primed = latest, true
	}
	batch := d.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	evts, err := d.src.EventsAfter(ctx, batch, h.cursor)
	if err != nil {
		log.Error().Err(err).Msg("read events")
		return
	}
	for _, evt := range evts {
		if wants(h.cfg.Events, evt.Type) {
			if err := deliver(ctx, h, evt); err != nil {
				log.Warn().Err(err).Int64("event_id", evt.ID).Msg("delivery failed")
				return
			}
			log.Debug().Int64("event_id", evt.ID).Str("type", evt.Type).Msg("delivered")
		}
		h.cursor = evt.ID
	}
}

// wants reports whether a hook subscribed to types receives t. No types means every type.
func wants(types []string, t string) bool {
	subscribed := false
	for _, s := range types {
		if s = strings.TrimSpace(s); s != "" {
			subscribed = true
			if s == t {
				return true
			}
		}
	}
	return !subscribed
}

func deliver(ctx context.Context, h *hook, evt domain.Event) error {
	body, err := json.Marshal(NewPayload(evt))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, evt.Type)
	req.Header.Set(HeaderDelivery, strconv.FormatInt(evt.ID, 10))
	if secret := strings.TrimSpace(h.cfg.Secret); secret != "" {
		req.Header.Set(HeaderSignature, Sign(secret, body))
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// NewPayload converts a stored event. A payload that is not valid JSON is sent as a JSON string.
func NewPayload(evt domain.Event) Payload {
	data := json.RawMessage("{}")
	switch {
	case evt.Payload == "":
	case json.Valid([]byte(evt.Payload)):
		data = json.RawMessage(evt.Payload)
	default:
		data, _ = json.Marshal(evt.Payload)
	}
	return Payload{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		OwnerID:    evt.OwnerID,
		TS:         evt.TS,
		Data:       data,
	}
}

// Sign returns the signature header value for body: "sha256=" and the hex HMAC-SHA256 under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by Sign.
func Verify(secret string, body []byte, header string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}

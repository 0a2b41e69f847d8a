// Package logsink implements the async, batched event export used to
// mirror request activity to an external collector. The wire format is
// intentionally simple JSON; it is an interchangeable adapter, not
// part of the content engine proper.
package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Event is one log-export record.
type Event struct {
	Type      string            `json:"type"` // "get", "post", "attempted_get"
	Key       string            `json:"key"`
	Timestamp time.Time         `json:"timestamp"`
	User      User              `json:"user"`
	Content   *ContentInfo      `json:"content,omitempty"`
}

type User struct {
	UserAgent string            `json:"user_agent"`
	Origin    string            `json:"origin"`
	Host      string            `json:"host"`
	IP        string            `json:"ip"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type ContentInfo struct {
	Length      int64     `json:"length"`
	ContentType string    `json:"content_type"`
	Expiry      time.Time `json:"expiry,omitempty"`
}

// Sink is the interface the request handlers depend on. The production
// implementation batches and forwards events asynchronously; a no-op
// implementation is used when no sink URI is configured.
type Sink interface {
	Log(e Event)
	Close()
}

// Noop drops every event; used when logging export is disabled.
type Noop struct{}

func (Noop) Log(Event) {}
func (Noop) Close()    {}

// HTTPBatcher buffers events on a channel and periodically POSTs a
// JSON array of them to a configured URI, grounded on the original's
// async log handler: a bounded queue drained by a background worker so
// the request path never blocks on the export call.
type HTTPBatcher struct {
	uri         string
	flushPeriod time.Duration
	client      *http.Client
	log         *slog.Logger

	queue chan Event
	done  chan struct{}
}

func NewHTTPBatcher(uri string, flushPeriod time.Duration, log *slog.Logger) *HTTPBatcher {
	b := &HTTPBatcher{
		uri:         uri,
		flushPeriod: flushPeriod,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
		queue:       make(chan Event, 1024),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *HTTPBatcher) Log(e Event) {
	select {
	case b.queue <- e:
	default:
		b.log.Warn("logsink: queue full, dropping event", "type", e.Type, "key", e.Key)
	}
}

func (b *HTTPBatcher) run() {
	ticker := time.NewTicker(b.flushPeriod)
	defer ticker.Stop()

	var batch []Event
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := b.send(batch); err != nil {
			b.log.Error("logsink: flush failed", "error", err, "count", len(batch))
		}
		batch = nil
	}

	for {
		select {
		case e, ok := <-b.queue:
			if !ok {
				flush()
				close(b.done)
				return
			}
			batch = append(batch, e)
		case <-ticker.C:
			flush()
		}
	}
}

func (b *HTTPBatcher) send(batch []Event) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.uri, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Close drains the queue, flushes any remaining batch, and blocks
// until the background worker has exited.
func (b *HTTPBatcher) Close() {
	close(b.queue)
	<-b.done
}

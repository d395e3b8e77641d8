package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/infrastructure/resilience"
)

// workerQueueGroup load-balances import events across worker replicas.
const workerQueueGroup = "catalog-workers"

// Queue carries catalog import events from the API to the workers.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	now      func() time.Time
}

type Options struct {
	ClientName         string
	ConnectTimeout     time.Duration
	ReconnectWait      time.Duration
	MaxReconnects      int
	DrainTimeout       time.Duration
	ResilienceExecutor *resilience.Executor
}

func (o Options) withDefaults() Options {
	if o.ClientName == "" {
		o.ClientName = "product-search-assistant"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = 60
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
	return o
}

// NewWithOptions connects to NATS. The first connect is retried in the
// background so that the API starts while the broker is still coming up.
func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	options = options.withDefaults()

	conn, err := nats.Connect(
		url,
		nats.Name(options.ClientName),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DrainTimeout(options.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "subject", subject, "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "subject", subject, "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		now:      time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishCatalogImported(ctx context.Context, importID string) error {
	body, err := encodeCatalogImported(importID, q.now())
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "publish catalog import", err)
	}

	msg := nats.NewMsg(q.subject)
	msg.Header.Set(importIDHeader, importID)
	msg.Data = body

	err = q.executor.Execute(ctx, "nats.publish", func(context.Context) error {
		return q.conn.PublishMsg(msg)
	}, classifyPublishError)
	return publishError(err)
}

// SubscribeCatalogImported blocks until ctx is done, handing each event to
// handler, then drains the subscription. Undecodable events are logged and
// dropped.
func (q *Queue) SubscribeCatalogImported(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		q.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}

func (q *Queue) dispatch(ctx context.Context, data []byte, handler func(context.Context, string) error) {
	event, err := decodeCatalogImported(data)
	if err != nil {
		slog.Error("catalog_import_event_invalid", "subject", q.subject, "error", err)
		return
	}

	attrs := []any{"import_id", event.ImportID}
	if !event.PublishedAt.IsZero() {
		attrs = append(attrs, "delivery_lag_ms", q.now().Sub(event.PublishedAt).Milliseconds())
	}
	slog.Debug("catalog_import_event_received", attrs...)

	if err := handler(ctx, event.ImportID); err != nil {
		slog.Error("catalog_import_handler_failed", append(attrs, "error", err)...)
	}
}

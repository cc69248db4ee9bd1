package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"hush/internal/config"
	"hush/internal/constants"
	"hush/internal/logger"
	"hush/pkg/logging"
	"hush/pkg/metrics"
	"hush/pkg/models"
	"hush/pkg/tracing"
)

// ConnectNATS dials the server with reconnects enabled.
func ConnectNATS(cfg config.NATSConfig, name string, log logger.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

type NATSProducer struct {
	nc     *nats.Conn
	owned  bool
	logger logger.Logger
}

// NewNATSProducer publishes on nc. The producer closes the connection only
// when owned is set.
func NewNATSProducer(nc *nats.Conn, owned bool, log logger.Logger) *NATSProducer {
	return &NATSProducer{nc: nc, owned: owned, logger: log}
}

func (p *NATSProducer) Publish(ctx context.Context, subject string, msg models.MessageEnvelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	out := &nats.Msg{
		Subject: subject,
		Data:    body,
		Header:  nats.Header{},
	}
	tracing.InjectNATSHeaders(ctx, out.Header)
	out.Header.Set(nats.MsgIdHdr, msg.ID)

	start := time.Now()
	err = p.nc.PublishMsg(out)
	metrics.ObserveWriteDuration(constants.BrokerTypeNATS, subject, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to publish nats message: %w", err)
	}

	metrics.IncMessagesWritten(constants.BrokerTypeNATS, subject)
	metrics.ObserveMessageSize(constants.BrokerTypeNATS, subject, "out", len(body))
	return nil
}

func (p *NATSProducer) Close() error {
	if !p.owned {
		return nil
	}
	if err := p.nc.Flush(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		p.nc.Close()
		return err
	}
	p.nc.Close()
	return nil
}

// NATSConsumer subscribes with a queue group so replicas share the subject.
// Core NATS delivers at most once; a handler that exhausts its retries sends
// the envelope to the dead letter subject.
type NATSConsumer struct {
	nc          *nats.Conn
	owned       bool
	queueGroup  string
	dispatcher  *dispatcher
	logger      logger.Logger
	serviceName string

	mu   sync.Mutex
	subs []*nats.Subscription
	wg   sync.WaitGroup
}

func NewNATSConsumer(nc *nats.Conn, owned bool, cfg config.BrokerConfig, log logger.Logger) *NATSConsumer {
	var dlq Producer
	if cfg.Topics.DLQ != "" {
		dlq = NewNATSProducer(nc, false, log)
	}
	return &NATSConsumer{
		nc:          nc,
		owned:       owned,
		queueGroup:  cfg.NATS.QueueGroup,
		dispatcher:  newDispatcher(cfg.Retry, dlq, cfg.Topics.DLQ, log),
		logger:      log,
		serviceName: "unknown",
	}
}

func (c *NATSConsumer) SetServiceName(name string) {
	c.serviceName = name
	c.dispatcher.serviceName = name
}

func (c *NATSConsumer) Consume(ctx context.Context, subject string, handler HandlerFunc) error {
	consumeCtx := logging.WithServiceName(ctx, c.serviceName)

	cb := func(m *nats.Msg) {
		c.wg.Add(1)
		defer c.wg.Done()
		c.handle(consumeCtx, m, handler)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if c.queueGroup != "" {
		sub, err = c.nc.QueueSubscribe(subject, c.queueGroup, cb)
	} else {
		sub, err = c.nc.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	c.logger.InfowCtx(consumeCtx, "Started consuming",
		"subject", subject,
		"queue_group", c.queueGroup,
	)

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		c.logger.WarnwCtx(consumeCtx, "Failed to unsubscribe", "subject", subject, "error", err)
	}
	c.logger.InfowCtx(consumeCtx, "Stopped consuming",
		"subject", subject,
		"reason", "context canceled",
	)
	return ctx.Err()
}

func (c *NATSConsumer) handle(ctx context.Context, m *nats.Msg, handler HandlerFunc) {
	metrics.IncMessagesRead(constants.BrokerTypeNATS, m.Subject)
	metrics.ObserveMessageSize(constants.BrokerTypeNATS, m.Subject, "in", len(m.Data))

	var envelope models.MessageEnvelope
	if err := json.Unmarshal(m.Data, &envelope); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to unmarshal message",
			"error", err,
			"subject", m.Subject,
		)
		return
	}

	msgCtx, span := tracing.StartSpanFromNATSMessage(ctx, "nats.consume", m)
	defer span.End()

	if envelope.Metadata.TraceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, envelope.Metadata.TraceID)
	}

	if err := c.dispatcher.dispatch(msgCtx, envelope, m.Subject, handler); err != nil {
		span.RecordError(err)
	}
}

func (c *NATSConsumer) Close() error {
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()

	c.wg.Wait()
	if c.owned {
		c.nc.Close()
	}
	return nil
}

package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Invalidator is the slice of the store adapter the consumer needs.
type Invalidator interface {
	DeleteByState(ctx context.Context, states []string) (int64, error)
	ClearExpired(ctx context.Context) (int64, error)
}

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

func DefaultConfig(brokers, topic, groupID string) Config {
	return Config{
		Brokers:             splitCSV(brokers),
		Topic:               topic,
		GroupID:             groupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
		DedupeSize:          4096,
	}
}

type Consumer struct {
	cfg    Config
	store  Invalidator
	dedupe *versionDedupe
	log    *slog.Logger
}

func New(cfg Config, store Invalidator, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		store:  store,
		dedupe: newVersionDedupe(cfg.DedupeSize),
		log:    log,
	}
}

// Start joins the consumer group and processes events until the context
// is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.log.Info("invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.log.Error("consumer error", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single event message. Decode failures are
// terminal for the message; store failures are returned so the claim is
// retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ev, err := Decode(msg.Value)
	if err != nil {
		c.log.Error("invalidation event rejected",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return fmt.Errorf("decode event: %w", err)
	}

	key := ev.DedupeKey()
	if c.dedupe.isStale(key, ev.Version) {
		c.log.Debug("stale invalidation skipped", "key", key, "version", ev.Version)
		return nil
	}

	switch ev.Type {
	case TypeForecastRefreshed:
		removed, err := c.store.DeleteByState(ctx, normalizeStates(ev.States))
		if err != nil {
			return fmt.Errorf("invalidate states: %w", err)
		}
		c.log.Info("invalidated cached rows",
			"states", ev.States, "removed", removed, "version", ev.Version)
	case TypeCachePurge:
		removed, err := c.store.ClearExpired(ctx)
		if err != nil {
			return fmt.Errorf("purge expired: %w", err)
		}
		c.log.Info("purged expired rows", "removed", removed, "version", ev.Version)
	}
	c.dedupe.markApplied(key, ev.Version)
	return nil
}

func normalizeStates(states []string) []string {
	out := make([]string, 0, len(states))
	for _, s := range states {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

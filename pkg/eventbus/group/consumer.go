package group

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/sirupsen/logrus"
)

// ClaimHandler is implemented by daemons that own their consumer group loop.
// HandleMessage is called once per record; the handler marks and commits
// offsets through the session only after its side effects are durable.
// Flush is called on the flush interval, at claim end and on rebalance so
// buffered work never outlives the claim.
type ClaimHandler interface {
	HandleMessage(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) error
	Flush(sess sarama.ConsumerGroupSession, reason string) error
}

// Consumer runs a sarama consumer group with auto-commit disabled. An error
// from the handler tears the session down without committing, so the broker
// redelivers from the last committed offset.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler ClaimHandler
	tick    time.Duration
	logger  *logrus.Entry
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewConsumer(conf config.KafkaConsumer, topics []string, tick time.Duration, handler ClaimHandler, logger *logrus.Entry) (*Consumer, error) {
	if len(conf.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if conf.GroupID == "" {
		return nil, fmt.Errorf("no kafka consumer group configured")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_6_0_0
	saramaConfig.ClientID = conf.ClientID
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = false

	group, err := sarama.NewConsumerGroup(conf.Brokers, conf.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create consumer group '%s': %w", conf.GroupID, err)
	}

	return &Consumer{
		group:   group,
		topics:  topics,
		handler: handler,
		tick:    tick,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

func (c *Consumer) RunAsync() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		for err := range c.group.Errors() {
			c.logger.Errorf("consumer group error: %s", err)
		}
	}()

	go func() {
		defer close(c.done)
		for {
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				c.logger.Errorf("consume session ended with error: %s", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return c.group.Close()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	var tickC <-chan time.Time
	if c.tick > 0 {
		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return c.handler.Flush(sess, "claim_end")
			}
			if err := c.handler.HandleMessage(sess, msg); err != nil {
				return err
			}
		case <-tickC:
			if err := c.handler.Flush(sess, "interval"); err != nil {
				return err
			}
		case <-sess.Context().Done():
			return c.handler.Flush(sess, "rebalance")
		}
	}
}

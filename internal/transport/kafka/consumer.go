package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-fulfillment/internal/domain"
	"github.com/sakashimaa/go-fulfillment/internal/notification"
	"github.com/sakashimaa/go-fulfillment/pkg/kafka"
	"github.com/sakashimaa/go-fulfillment/pkg/mylogger"
	"go.uber.org/zap"
)

type Consumer struct {
	service *notification.Service
	topic   string
	logger  *zap.Logger
}

func NewConsumer(service *notification.Service, topic string, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		topic:   topic,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string) {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		"fulfillment-notification-group",
		[]string{c.topic},
		c.processMessage,
		c.logger,
	)

	consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	// event_id sits at the wrapper level: the outbox worker stamps it
	// there after loading the payload.
	type EventWrapper struct {
		Event   string          `json:"event"`
		EventID int64           `json:"event_id"`
		Payload json.RawMessage `json:"payload"`
	}

	var wrapper EventWrapper
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling wrapper", zap.Error(err))
		return err
	}

	switch wrapper.Event {
	case "PaymentReceipt":
		var event domain.PaymentReceiptEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Error parsing receipt event", zap.Error(err))
			return nil
		}
		event.EventID = wrapper.EventID

		if err := c.service.HandlePaymentReceipt(ctx, event); err != nil {
			mylogger.Error(ctx, c.logger, "Error processing receipt event", zap.Error(err))
			return err
		}
	default:
		mylogger.Info(
			ctx,
			c.logger,
			"Ignored event type",
			zap.String("event", wrapper.Event),
		)
	}

	return nil
}

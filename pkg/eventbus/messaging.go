package eventbus

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/sirupsen/logrus"
)

// PartitionKeyMetadata is the message metadata key carrying the partitioning
// key. Records for the same device must land on the same partition so that
// per-device ordering holds end to end.
const PartitionKeyMetadata = "partition_key"

func NewMessage(key string, payload []byte) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if key != "" {
		msg.Metadata.Set(PartitionKeyMetadata, key)
	}
	return msg
}

func NewMessageRouter(logger *logrus.Entry) (*message.Router, error) {
	lEventBus := NewLoggerAdapter(logger.WithField("subsystem-provider", "EventBus - Router"))

	router, err := message.NewRouter(message.RouterConfig{}, lEventBus)
	if err != nil {
		return nil, fmt.Errorf("could not create event bus router: %s", err)
	}

	router.AddPlugin(plugin.SignalsHandler)

	router.AddMiddleware(
		// Recoverer handles panics from handlers.
		middleware.Recoverer,

		// CorrelationID will copy the correlation id from the incoming message's metadata to the produced messages
		middleware.CorrelationID,

		// The handler function is retried if it returns an error.
		// After MaxRetries, it's up to the PubSub to resend it, mark as ACK or NACK.
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second * 2,
			MaxInterval:     time.Second * 10,
			Multiplier:      3,
			Logger:          lEventBus,
		}.Middleware,
	)

	return router, nil
}

package mqttbus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/landslide-monitor/pipeline/pkg/config"
	"github.com/sirupsen/logrus"
)

// MessageHandler receives one uplink message. QoS 1 means redelivery is
// possible; downstream consumers are idempotent so handlers never need to
// dedupe here.
type MessageHandler func(topic string, payload []byte)

// Client wraps the paho client with QoS-1 pub/sub and resubscribe on
// reconnect.
type Client struct {
	inner  mqtt.Client
	logger *logrus.Entry

	mu   sync.Mutex
	subs map[string]MessageHandler
}

func NewClient(conf config.MQTTClient, logger *logrus.Entry) (*Client, error) {
	if conf.BrokerURL == "" {
		return nil, fmt.Errorf("no mqtt broker url configured")
	}

	c := &Client{
		logger: logger,
		subs:   map[string]MessageHandler{},
	}

	keepAlive := conf.KeepAliveSeconds
	if keepAlive <= 0 {
		keepAlive = 30
	}
	connectTimeout := conf.ConnectTimeoutSeconds
	if connectTimeout <= 0 {
		connectTimeout = 10
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.BrokerURL)
	opts.SetClientID(conf.ClientID)
	if conf.Username != "" {
		opts.SetUsername(conf.Username)
		opts.SetPassword(string(conf.Password))
	}
	opts.SetKeepAlive(time.Duration(keepAlive) * time.Second)
	opts.SetConnectTimeout(time.Duration(connectTimeout) * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Infof("mqtt connected to %s", conf.BrokerURL)
		c.resubscribe()
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warnf("mqtt connection lost: %s", err)
	})

	c.inner = mqtt.NewClient(opts)
	if token := c.inner.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return c, nil
}

// Subscribe registers a QoS-1 subscription that survives reconnects.
func (c *Client) Subscribe(topicFilter string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topicFilter] = handler
	c.mu.Unlock()

	token := c.inner.Subscribe(topicFilter, 1, func(client mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("could not subscribe to '%s': %w", topicFilter, token.Error())
	}

	c.logger.Infof("mqtt subscribed to %s", topicFilter)
	return nil
}

// Publish sends a QoS-1 message and waits for the broker ack.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.inner.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("could not publish to '%s': %w", topic, token.Error())
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.inner.IsConnectionOpen()
}

func (c *Client) Disconnect() {
	c.inner.Disconnect(250)
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topicFilter, handler := range c.subs {
		h := handler
		token := c.inner.Subscribe(topicFilter, 1, func(client mqtt.Client, msg mqtt.Message) {
			h(msg.Topic(), msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			c.logger.Errorf("could not resubscribe to '%s': %s", topicFilter, token.Error())
		}
	}
}

// DeviceIDFromTopic extracts the trailing device id from a two-level topic
// such as cmd_ack/{deviceId}.
func DeviceIDFromTopic(topic string) string {
	idx := strings.IndexByte(topic, '/')
	if idx < 0 || idx+1 >= len(topic) {
		return ""
	}
	return topic[idx+1:]
}

func CommandTopic(deviceID string) string {
	return "cmd/" + deviceID
}

// Package cloud connects the bridge to the MQTT broker of the control plane.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PrinterBridge/internal/link"
	"github.com/NowakAdmin/PrinterBridge/internal/metrics"
)

var (
	ErrNotConnected   = errors.New("cloud link not connected")
	ErrConnectTimeout = errors.New("cloud link connect timeout")
	ErrPublishTimeout = errors.New("cloud publish not confirmed")
)

const (
	defaultConnectTimeout = 10 * time.Second
	keepAlive             = 60 * time.Second
	defaultPublishWait    = 10 * time.Second
	disconnectQuiesce     = 250
	qos                   = 0
)

// Handler receives inbound commands, in arrival order, and connectivity
// transitions.
type Handler interface {
	HandleCloudCommand(payload []byte)
	HandleCloudState(state link.State)
}

type Options struct {
	Broker         string
	Port           int
	APIKey         string
	Topics         Topics
	ConnectTimeout time.Duration
}

type Link struct {
	opts        Options
	publishWait time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	mu     sync.Mutex
	client mqtt.Client
}

func NewLink(opts Options, logger zerolog.Logger, m *metrics.Metrics) *Link {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}

	return &Link{opts: opts, publishWait: defaultPublishWait, logger: logger, metrics: m}
}

func (l *Link) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", l.opts.Broker, l.opts.Port)
}

// Connect dials the broker and subscribes to the command topic. The client
// resubscribes after every automatic reconnect.
func (l *Link) Connect(ctx context.Context, h Handler) error {
	commandTopic := l.opts.Topics.Command()

	clientOpts := mqtt.NewClientOptions().
		AddBroker(l.BrokerURL()).
		SetClientID("printer-bridge-" + uuid.NewString()[:8]).
		SetUsername(l.opts.APIKey).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(l.opts.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			h.HandleCloudState(link.Connected)
			token := c.Subscribe(commandTopic, qos, func(_ mqtt.Client, msg mqtt.Message) {
				h.HandleCloudCommand(msg.Payload())
			})
			go func() {
				<-token.Done()
				if err := token.Error(); err != nil {
					l.logger.Error().Err(err).Msg("command topic subscription failed")
					return
				}
				l.logger.Info().Msg("subscribed to command topic")
			}()
		}).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
			h.HandleCloudState(link.Connecting)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.logger.Warn().Err(err).Msg("cloud link lost")
			h.HandleCloudState(link.Disconnected)
		})

	client := mqtt.NewClient(clientOpts)

	h.HandleCloudState(link.Connecting)
	token := client.Connect()

	timer := time.NewTimer(l.opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		h.HandleCloudState(link.Disconnected)
		return ctx.Err()
	case <-timer.C:
		client.Disconnect(0)
		h.HandleCloudState(link.Disconnected)
		return fmt.Errorf("%w: %s", ErrConnectTimeout, l.BrokerURL())
	}

	if err := token.Error(); err != nil {
		h.HandleCloudState(link.Disconnected)
		return fmt.Errorf("connect %s: %w", l.BrokerURL(), err)
	}

	// A cancel racing the connect must not leave a client nobody closes.
	if err := ctx.Err(); err != nil {
		client.Disconnect(0)
		h.HandleCloudState(link.Disconnected)
		return err
	}

	l.mu.Lock()
	l.client = client
	l.mu.Unlock()

	l.logger.Info().Str("broker", l.BrokerURL()).Msg("cloud link connected")

	return nil
}

// Publish marshals payload and hands it to the client without waiting for
// delivery. Delivery failures are only logged.
func (l *Link) Publish(topic string, payload any) error {
	kind := l.opts.Topics.Kind(topic)

	body, err := json.Marshal(payload)
	if err != nil {
		l.metrics.Publish(kind, err)
		return err
	}

	l.mu.Lock()
	client := l.client
	l.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		l.metrics.Publish(kind, ErrNotConnected)
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, false, body)
	go l.awaitPublish(token, kind)

	return nil
}

// awaitPublish records the delivery outcome of one publish.
func (l *Link) awaitPublish(token mqtt.Token, kind string) {
	if !token.WaitTimeout(l.publishWait) {
		l.metrics.Publish(kind, ErrPublishTimeout)
		l.logger.Warn().Str("topic", kind).Msg("publish not confirmed")
		return
	}

	err := token.Error()
	l.metrics.Publish(kind, err)
	if err != nil {
		l.logger.Error().Err(err).Str("topic", kind).Msg("publish failed")
	}
}

func (l *Link) Close() {
	l.mu.Lock()
	client := l.client
	l.client = nil
	l.mu.Unlock()

	if client != nil {
		client.Disconnect(disconnectQuiesce)
	}
}

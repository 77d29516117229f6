// Package mqttlink bridges the radio medium through an MQTT broker, the way
// LoRa gateways expose their air interface. Every device on a network
// publishes and subscribes to one shared topic, mirroring the half-duplex
// shared channel the protocol is designed for.
package mqttlink

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/link"
)

const rxQueueCap = 64

// Options configures the broker connection.
type Options struct {
	BrokerURL string
	Network   string // topic segment shared by all devices on one radio net
	ClientID  string // a uuid suffix is appended so two remotes never collide
	Username  string
	Password  string
}

// envelope is the gateway wire format: frame bytes plus the modem's
// signal-quality readings for that reception.
type envelope struct {
	Data string `json:"data"` // base64 frame bytes
	RSSI int16  `json:"rssi"`
	SNR  int8   `json:"snr"`
}

// Link implements link.Transport over an MQTT broker.
type Link struct {
	client mqtt.Client
	topic  string
	log    *zap.Logger

	mu    sync.Mutex
	queue []link.Received
	self  string
}

// New connects to the broker and subscribes to the network's air topic.
func New(opts Options, log *zap.Logger) (*Link, error) {
	if opts.Network == "" {
		opts.Network = "default"
	}
	clientID := fmt.Sprintf("%s-%s", opts.ClientID, uuid.NewString()[:8])

	l := &Link{
		topic: fmt.Sprintf("laura/%s/air", opts.Network),
		log:   log.With(zap.String("component", "mqttlink")),
		self:  clientID,
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(clientID)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectTimeout(5 * time.Second)
	clientOpts.SetConnectRetryInterval(5 * time.Second)
	clientOpts.SetMaxReconnectInterval(15 * time.Second)
	clientOpts.SetKeepAlive(30 * time.Second)
	clientOpts.SetOnConnectHandler(l.onConnect)
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		l.log.Warn("broker connection lost", zap.Error(err))
	})

	l.client = mqtt.NewClient(clientOpts)
	if token := l.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", opts.BrokerURL, token.Error())
	}

	return l, nil
}

func (l *Link) onConnect(client mqtt.Client) {
	token := client.Subscribe(l.topic, 0, l.onMessage)
	if token.Wait() && token.Error() != nil {
		l.log.Error("subscribe failed", zap.String("topic", l.topic), zap.Error(token.Error()))
		return
	}
	l.log.Info("listening on air topic", zap.String("topic", l.topic))
}

// onMessage runs on paho's router goroutine. It only enqueues; decoding and
// state mutation stay on the event loop, which drains through Poll.
func (l *Link) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Payload(), &env); err != nil {
		l.log.Warn("dropping unparseable gateway message", zap.Error(err))
		return
	}
	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		l.log.Warn("dropping gateway message with bad frame encoding", zap.Error(err))
		return
	}

	l.mu.Lock()
	if len(l.queue) >= rxQueueCap {
		l.queue = l.queue[1:]
	}
	l.queue = append(l.queue, link.Received{Data: data, RSSI: env.RSSI, SNR: env.SNR})
	l.mu.Unlock()
}

func (l *Link) Send(data []byte) error {
	env := envelope{Data: base64.StdEncoding.EncodeToString(data)}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", link.ErrTransmit, err)
	}
	token := l.client.Publish(l.topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("%w: %v", link.ErrTransmit, token.Error())
	}
	return nil
}

func (l *Link) Poll() (link.Received, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return link.Received{}, false
	}
	rx := l.queue[0]
	l.queue = l.queue[1:]
	return rx, true
}

func (l *Link) Close() error {
	l.client.Disconnect(250)
	return nil
}

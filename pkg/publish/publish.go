// Package publish mirrors the render boundary onto MQTT topics so other
// processes (dashboards, loggers) can follow a posture session.
package publish

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/config"
	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

const (
	TopicReading  = "reading"
	TopicState    = "state"
	TopicBaseline = "baseline"
	TopicError    = "error"
)

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// StateMessage is published on every connection state change
type StateMessage struct {
	From models.ConnectionState `json:"from"`
	To   models.ConnectionState `json:"to"`
	At   time.Time              `json:"at"`
}

// ErrorMessage is published for connection errors
type ErrorMessage struct {
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// Publisher implements both listener interfaces and publishes each callback as JSON.
// State and baseline are retained so late subscribers see the current values.
type Publisher struct {
	client  publisher
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Publisher)

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithTimeout bounds how long a publish may stay unacknowledged before it is logged as failed
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.timeout = d }
}

func New(client publisher, prefix string, qos byte, opts ...Option) *Publisher {
	p := &Publisher{
		client:  client,
		prefix:  prefix,
		qos:     qos,
		timeout: 2 * time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial connects to the configured broker, retrying a few times, and returns a
// publisher bound to it together with a function that disconnects.
func Dial(cfg config.MQTTConfig, logger *slog.Logger) (*Publisher, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)
	err := util.Retry(3, func() error {
		token := client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return errors.New("connect timed out")
		}
		return token.Error()
	}, func(attempt int, err error) {
		logger.Warn("mqtt connect failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
		time.Sleep(time.Second)
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "MQTT connect %s issue", cfg.Broker)
	}
	logger.Info("mqtt connected", slog.String("broker", cfg.Broker), slog.String("prefix", cfg.TopicPrefix))
	closer := func() { client.Disconnect(250) }
	return New(client, cfg.TopicPrefix, byte(cfg.QoS), WithLogger(logger)), closer, nil
}

func (p *Publisher) topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "/" + name
}

func (p *Publisher) publish(name string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal issue")
	}
	topic := p.topic(name)
	go p.await(topic, p.client.Publish(topic, p.qos, retained, payload))
	return nil
}

// await waits for the broker off the caller's goroutine and logs the outcome
func (p *Publisher) await(topic string, token mqtt.Token) error {
	var err error
	if !token.WaitTimeout(p.timeout) {
		err = errors.Errorf("publish to %s timed out", topic)
	} else if token.Error() != nil {
		err = errors.Wrapf(token.Error(), "publish to %s", topic)
	}
	if err != nil {
		p.logger.Warn("mqtt publish failed", slog.String("error", err.Error()))
	}
	return err
}

func (p *Publisher) OnReading(r models.Reading) {
	p.publish(TopicReading, false, r)
}

func (p *Publisher) OnDecodeError(error) {}

func (p *Publisher) OnCalibrated(b models.Baseline) {
	p.publish(TopicBaseline, true, b)
}

func (p *Publisher) OnStateChanged(from models.ConnectionState, to models.ConnectionState) {
	p.publish(TopicState, true, StateMessage{From: from, To: to, At: p.now()})
}

func (p *Publisher) OnPeripheralFound(models.PeripheralHandle) {}

func (p *Publisher) OnConnectionError(err error) {
	p.publish(TopicError, false, ErrorMessage{Error: err.Error(), At: p.now()})
}

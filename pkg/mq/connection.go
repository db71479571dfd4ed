package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange 网关实例之间广播任务事件的交换机
	DefaultExchange     = "taskhub.events"
	DefaultExchangeKind = amqp091.ExchangeTopic

	heartbeat = 10 * time.Second
)

// Options selects the exchange events travel on and names the broker
// connection so each gateway instance shows up on the management UI.
type Options struct {
	Exchange       string
	ExchangeKind   string
	ConnectionName string
}

// WithDefaults fills an empty exchange with the task-events topic exchange.
func (o Options) WithDefaults() Options {
	if o.Exchange == "" {
		o.Exchange = DefaultExchange
	}
	if o.ExchangeKind == "" {
		o.ExchangeKind = DefaultExchangeKind
	}
	return o
}

func (o Options) validate() error {
	switch o.ExchangeKind {
	case amqp091.ExchangeTopic, amqp091.ExchangeFanout, amqp091.ExchangeDirect, amqp091.ExchangeHeaders:
		return nil
	}
	return fmt.Errorf("unsupported exchange kind %q", o.ExchangeKind)
}

// NewConnection dials RabbitMQ with a heartbeat and the configured connection name.
func NewConnection(url string, opts Options) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	if opts.ConnectionName != "" {
		props.SetClientConnectionName(opts.ConnectionName)
	}
	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the durable exchange named by opts.
func DeclareExchange(ch *amqp091.Channel, opts Options) error {
	return ch.ExchangeDeclare(
		opts.Exchange,
		opts.ExchangeKind,
		true,
		false,
		false,
		false,
		nil,
	)
}

// dial opens a connection and a channel with the exchange declared.
func dial(url string, opts Options) (*amqp091.Connection, *amqp091.Channel, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	conn, err := NewConnection(url, opts)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch, opts); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange %s: %w", opts.Exchange, err)
	}
	return conn, ch, nil
}

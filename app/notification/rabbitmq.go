package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "billing.notifications"

type message struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	Recipient  string                 `json:"recipient"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// Publisher hands notifications to a mail worker through a topic exchange. The routing key
// is "notification.<type>".
type Publisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	now      func() time.Time
}

func NewPublisher(amqpURL, exchange string) (*Publisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = defaultExchange
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, channel: ch, exchange: exchange, now: time.Now}, nil
}

func (p *Publisher) Notify(ctx context.Context, n *Notification) error {
	if p.channel == nil {
		return errors.New("rabbitmq channel not initialized")
	}
	routingKey, payload, err := encodeMessage(n, p.now())
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         payload,
		Timestamp:    p.now(),
	})
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func encodeMessage(n *Notification, now time.Time) (string, []byte, error) {
	if n == nil || strings.TrimSpace(string(n.Type)) == "" {
		return "", nil, errors.New("notification type is required")
	}
	if strings.TrimSpace(n.Recipient) == "" {
		return "", nil, errors.New("notification recipient is required")
	}
	payload, err := json.Marshal(&message{
		ID:         uuid.NewString(),
		Type:       n.Type,
		Recipient:  n.Recipient,
		Data:       n.Data,
		OccurredAt: now.UTC(),
	})
	if err != nil {
		return "", nil, err
	}
	return "notification." + string(n.Type), payload, nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

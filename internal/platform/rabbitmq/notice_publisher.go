package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"notekeeper/internal/model"
)

type NoticePublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewNoticePublisher(conn *amqp.Connection, queueName string) *NoticePublisher {
	return &NoticePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *NoticePublisher) Publish(ctx context.Context, notice model.BackupNotice) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish notice failed: %w", err)
	}
	return nil
}

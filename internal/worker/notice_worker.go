package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notekeeper/internal/model"
)

// Sender delivers a notice text to the owner's chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyMarkup interface{}) error
}

// NoticeWorker consumes backup notices from the queue and forwards them to
// the owner as chat messages. Backup runs are detached from the chat
// handlers, so this queue is the only path for their results.
type NoticeWorker struct {
	conn      *amqp.Connection
	sender    Sender
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNoticeWorker(conn *amqp.Connection, sender Sender, queueName string) *NoticeWorker {
	return &NoticeWorker{
		conn:      conn,
		sender:    sender,
		queueName: queueName,
	}
}

func (w *NoticeWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var notice model.BackupNotice
				if err := json.Unmarshal(d.Body, &notice); err != nil {
					log.Printf("worker decode notice failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				sendCtx, sendCancel := context.WithTimeout(workerCtx, 30*time.Second)
				err := w.sender.SendMessage(sendCtx, notice.OwnerID, NoticeText(notice), nil)
				sendCancel()
				if err != nil {
					log.Printf("worker deliver notice failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *NoticeWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// NoticeText renders a backup notice for the owner's chat.
func NoticeText(n model.BackupNotice) string {
	kind := kindLabel(n.Kind)

	switch n.Stage {
	case model.BackupStarted:
		if n.Kind == model.RestoreRun {
			return "🔄 Restore started..."
		}
		return fmt.Sprintf("💾 %s backup started...", kind)
	case model.BackupSucceeded:
		if n.Kind == model.RestoreRun {
			return "✅ Restore finished. Restart the service so all connections pick up the restored data."
		}
		if n.Link != "" {
			return fmt.Sprintf("✅ %s backup finished.\n🔗 %s", kind, n.Link)
		}
		return fmt.Sprintf("✅ %s backup finished.", kind)
	case model.BackupFailed:
		if n.Kind == model.RestoreRun {
			return fmt.Sprintf("❌ Restore failed: %s", n.Reason)
		}
		return fmt.Sprintf("❌ %s backup failed: %s", kind, n.Reason)
	default:
		return fmt.Sprintf("backup %s: %s", n.Stage, n.Reason)
	}
}

func kindLabel(k model.BackupKind) string {
	switch k {
	case model.BackupInitial:
		return "Initial"
	case model.BackupScheduled:
		return "Scheduled"
	case model.BackupManual:
		return "Manual"
	default:
		return "Backup"
	}
}

// Package kafka publishes up-next signals for the downstream notification
// service to deliver.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/openmiclive/lineup/internal/domain"
	"github.com/openmiclive/lineup/internal/notify"
	"github.com/openmiclive/lineup/pkg/logger"
)

const TopicUpNext = "lineup.signup.up-next"

type UpNextEvent struct {
	SignupID  string    `json:"signup_id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	SongTitle string    `json:"song_title,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type kafkaNotifier struct {
	prod sarama.SyncProducer
	l    logger.Logger
}

func NewNotifier(prod sarama.SyncProducer, l logger.Logger) notify.Notifier {
	return &kafkaNotifier{prod: prod, l: l}
}

func (n *kafkaNotifier) NotifyUpNext(_ context.Context, su domain.Signup) error {
	event := UpNextEvent{
		SignupID:  su.ID,
		EventID:   su.EventID,
		Name:      su.Name,
		SongTitle: su.SongTitle,
		Timestamp: time.Now(),
	}
	val, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicUpNext,
		// Partition by event_id so one event's signals stay ordered.
		Key:   sarama.StringEncoder(su.EventID),
		Value: sarama.ByteEncoder(val),
	}

	if _, _, err := n.prod.SendMessage(msg); err != nil {
		n.l.Error("failed to publish up-next event",
			"signup_id", su.ID,
			"event_id", su.EventID,
			"error", err,
		)
		return err
	}

	n.l.Debug("published up-next event", "signup_id", su.ID, "event_id", su.EventID)
	return nil
}

func (n *kafkaNotifier) Close() error {
	return n.prod.Close()
}

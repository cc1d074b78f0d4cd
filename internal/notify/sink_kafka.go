package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink publishes each notification as JSON keyed by agreement id, so one
// agreement's notifications stay ordered within a partition.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

type kafkaPayload struct {
	AgreementID string       `json:"agreementId"`
	Event       Event        `json:"event"`
	Recipient   kafkaContact `json:"recipient"`
	Subject     string       `json:"subject"`
}

type kafkaContact struct {
	ContactID string `json:"contactId"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
}

func (s *KafkaSink) Deliver(ctx context.Context, n Notification) error {
	subject, _ := Summarize(n.Event)
	value, err := json.Marshal(kafkaPayload{
		AgreementID: n.Event.AgreementID.String(),
		Event:       n.Event,
		Recipient: kafkaContact{
			ContactID: n.Recipient.ContactID.String(),
			Email:     n.Recipient.Email,
			Name:      n.Recipient.Name,
		},
		Subject: subject,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(n.Event.AgreementID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(n.Event.Type)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

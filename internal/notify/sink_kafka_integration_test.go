//go:build integration

package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	platformkafka "ndaflow/internal/platform/kafka"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/testutil/containers"
)

func TestKafkaSinkPublishesToBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	broker := containers.GetManager().GetRedpanda(t)
	const topic = "agreement.notifications.test"

	producer, err := platformkafka.NewProducer(broker.Brokers, "ndaflow-test")
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, platformkafka.EnsureTopic(ctx, producer, topic, 1, 1))
	require.NoError(t, platformkafka.EnsureTopic(ctx, producer, topic, 1, 1), "existing topic is accepted")

	agreementID := id.NewAgreementID()
	sink := NewKafkaSink(producer, topic)
	err = sink.Deliver(ctx, Notification{
		Event: Event{
			Type:        EventStatusChanged,
			AgreementID: agreementID,
			DisplayID:   12,
			CompanyName: "Acme",
			NewStatus:   "PENDING_APPROVAL",
			StatusLabel: "Pending Approval",
		},
		Recipient: Recipient{ContactID: id.NewContactID(), Email: "jane@usmax.com", Name: "Jane Doe"},
	})
	require.NoError(t, err)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var record *kgo.Record
	for record == nil && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		require.Empty(t, fetches.Errors())
		if records := fetches.Records(); len(records) > 0 {
			record = records[0]
		}
	}
	require.NotNil(t, record, "no record consumed before timeout")

	assert.Equal(t, agreementID.String(), string(record.Key))
	require.Len(t, record.Headers, 1)
	assert.Equal(t, "event-type", record.Headers[0].Key)
	assert.Equal(t, string(EventStatusChanged), string(record.Headers[0].Value))

	var payload struct {
		AgreementID string `json:"agreementId"`
		Subject     string `json:"subject"`
		Recipient   struct {
			Email string `json:"email"`
		} `json:"recipient"`
		Event struct {
			CompanyName string `json:"companyName"`
			NewStatus   string `json:"newStatus"`
		} `json:"event"`
	}
	require.NoError(t, json.Unmarshal(record.Value, &payload))
	assert.Equal(t, agreementID.String(), payload.AgreementID)
	assert.Equal(t, "jane@usmax.com", payload.Recipient.Email)
	assert.Equal(t, "Acme", payload.Event.CompanyName)
	assert.Equal(t, "PENDING_APPROVAL", payload.Event.NewStatus)
	assert.Contains(t, payload.Subject, "Pending Approval")
}

package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/cardpost/internal/models"
)

// MockNATSClient records the last publish
type MockNATSClient struct {
	PublishedSubject string
	PublishedData    any
	PublishError     error
}

func (m *MockNATSClient) Publish(_ context.Context, subject string, data any) error {
	m.PublishedSubject = subject
	m.PublishedData = data
	return m.PublishError
}

func TestNATSPublisher_PublishSendOutcome_Sent(t *testing.T) {
	mock := &MockNATSClient{}
	pub := NewNATSPublisher(mock)

	event := SendOutcomeEvent{
		SendID:     uuid.New(),
		CardID:     uuid.New(),
		Channel:    models.SendChannelEmail,
		Status:     models.SendStatusSent,
		MessageIDs: map[string]string{"email": "<abc@mail>"},
		Attempts:   2,
	}

	require.NoError(t, pub.PublishSendOutcome(context.Background(), event))
	assert.Equal(t, SubjectSendSent, mock.PublishedSubject)

	sent, ok := mock.PublishedData.(SendOutcomeEvent)
	require.True(t, ok)
	assert.Equal(t, event.SendID, sent.SendID)
	assert.False(t, sent.OccurredAt.IsZero(), "timestamp is filled in")
}

func TestNATSPublisher_PublishSendOutcome_FailedSubject(t *testing.T) {
	mock := &MockNATSClient{}
	pub := NewNATSPublisher(mock)

	err := pub.PublishSendOutcome(context.Background(), SendOutcomeEvent{
		SendID: uuid.New(),
		Status: models.SendStatusFailed,
		Error:  "messenger delivery failed: timeout",
	})
	require.NoError(t, err)
	assert.Equal(t, SubjectSendFailed, mock.PublishedSubject)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	mock := &MockNATSClient{PublishError: errors.New("no responders")}
	pub := NewNATSPublisher(mock)

	err := pub.PublishSendOutcome(context.Background(), SendOutcomeEvent{Status: models.SendStatusSent})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "publish send outcome")
}

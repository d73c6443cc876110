// Package mocks provides testify mocks for the automation core's collaborators.
package mocks

import (
	"context"

	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/classifier"
	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/messaging"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockClassifier is a mock implementation of classifier.Classifier.
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) EvaluateCondition(ctx context.Context, req classifier.ConditionRequest) (classifier.Judgment, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(classifier.Judgment), args.Error(1)
}

func (m *MockClassifier) GenerateContent(ctx context.Context, req classifier.GenerateRequest) (classifier.Generated, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(classifier.Generated), args.Error(1)
}

// MockMessenger implements messaging.Mailer, messaging.Forwarder and messaging.Notifier.
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendReply(ctx context.Context, reply messaging.Reply) (messaging.Receipt, error) {
	args := m.Called(ctx, reply)

	return args.Get(0).(messaging.Receipt), args.Error(1)
}

func (m *MockMessenger) Forward(ctx context.Context, forward messaging.Forward) (messaging.Receipt, error) {
	args := m.Called(ctx, forward)

	return args.Get(0).(messaging.Receipt), args.Error(1)
}

func (m *MockMessenger) Notify(ctx context.Context, notification messaging.Notification) (messaging.Receipt, error) {
	args := m.Called(ctx, notification)

	return args.Get(0).(messaging.Receipt), args.Error(1)
}

// MockTaskStore is a mock implementation of the task action's store.
type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) CreateTask(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)

	return args.Error(0)
}

package forward

import (
	"testing"

	"github.com/dubaigit/task-mail-sub006/pkg/actions"
	"github.com/dubaigit/task-mail-sub006/pkg/collaborators/messaging"
	"github.com/dubaigit/task-mail-sub006/pkg/mocks"
	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func request(props models.Properties) actions.Request {
	return actions.Request{
		NodeID:         "fwd-1",
		Props:          props,
		View:           models.NewExecutionContext("exec-1", "wf-1", &models.Event{ID: "evt-1"}, false),
		IdempotencyKey: "exec-1:fwd-1",
	}
}

func TestHandler_Execute(t *testing.T) {
	forwarder := &mocks.MockMessenger{}
	forwarder.On("Forward", mock.Anything, messaging.Forward{
		IdempotencyKey: "exec-1:fwd-1",
		EventID:        "evt-1",
		To:             []string{"ap@acme.com", "cfo@acme.com"},
		Note:           "please review",
	}).Return(messaging.Receipt{MessageID: "msg-9"}, nil)

	result := NewHandler(forwarder).Execute(t.Context(), request(models.Properties{
		"to":   "ap@acme.com, cfo@acme.com",
		"note": "please review",
	}))

	require.True(t, result.Success, "%v", result.Err)
	forwarder.AssertExpectations(t)
}

func TestHandler_RequiresRecipients(t *testing.T) {
	handler := NewHandler(&mocks.MockMessenger{})

	assert.ErrorIs(t, handler.Execute(t.Context(), request(models.Properties{})).Err, actions.ErrInvalidConfig)
	assert.ErrorIs(t, handler.Simulate(request(models.Properties{})).Err, actions.ErrInvalidConfig)
}

package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/conductor/pkg/mocks"
	"github.com/dukex/conductor/pkg/models"
	"github.com/dukex/conductor/pkg/services"
	"github.com/dukex/conductor/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWorkflowService_HealthCheck(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("HealthCheck", mock.Anything).Return(errors.New("disk full")).Once()
	store.On("HealthCheck", mock.Anything).Return(nil).Once()

	service := services.NewWorkflow(store, testutil.DiscardLogger())

	message, ok := service.HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Contains(t, message, "disk full")

	message, ok = service.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	store.AssertExpectations(t)
}

func TestWorkflowService_CreatePropagatesSaveError(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	store.On("SaveWorkflow", mock.Anything, mock.AnythingOfType("*models.Workflow")).
		Return(errors.New("read-only"))

	service := services.NewWorkflow(store, testutil.DiscardLogger())

	_, err := service.Create(context.Background(), testutil.CreateTestWorkflow(testutil.CreateTestStep("s1")))
	require.ErrorContains(t, err, "read-only")
	assert.False(t, services.IsValidationError(err))

	store.AssertExpectations(t)
}

func TestWorkflowService_InvalidWorkflowNeverReachesStore(t *testing.T) {
	t.Parallel()

	store := &mocks.MockPersistence{}
	service := services.NewWorkflow(store, testutil.DiscardLogger())

	invalid := testutil.CreateTestWorkflow()
	invalid.Name = ""

	_, err := service.Create(context.Background(), invalid)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	store.AssertNotCalled(t, "SaveWorkflow", mock.Anything, mock.Anything)
}

func TestWorkflowService_DeleteStoreError(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow(testutil.CreateTestStep("s1"))

	store := &mocks.MockPersistence{}
	store.On("WorkflowByID", mock.Anything, workflow.ID).Return(workflow, nil)
	store.On("DeleteWorkflow", mock.Anything, workflow.ID).Return(errors.New("locked"))

	schedules := &fakeSchedules{tasks: []*models.ScheduledTask{{ID: "t1", WorkflowID: workflow.ID}}}
	service := services.NewWorkflow(store, testutil.DiscardLogger(), services.WithScheduleCanceller(schedules))

	err := service.Delete(context.Background(), workflow.ID)
	require.ErrorContains(t, err, "locked")
	assert.Empty(t, schedules.cancelled)

	store.AssertExpectations(t)
}

package postgresql_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dukex/conductor/pkg/persistence"
	"github.com/dukex/conductor/pkg/persistence/postgresql"
	"github.com/dukex/conductor/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPersistence(t *testing.T) (*postgresql.Persistence, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	p := postgresql.NewPersistenceWithDB(db, testutil.DiscardLogger())

	t.Cleanup(func() { _ = p.Close(context.Background()) })

	return p, mock
}

func TestWorkflowRepository_Save(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)
	workflow := testutil.CreateTestWorkflow(testutil.CreateTestStep("log"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflows")).
		WithArgs(
			workflow.ID,
			workflow.Name,
			workflow.Description,
			workflow.Version,
			[]byte(`["test"]`),
			sqlmock.AnyArg(),
			false,
			workflow.CreatedAt,
			workflow.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, p.SaveWorkflow(context.Background(), workflow))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_SaveTemplateFlagsRow(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)
	template := testutil.CreateTestWorkflow()
	template.ID = "custom_template"
	template.Tags = nil

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflows")).
		WithArgs(
			"custom_template",
			template.Name,
			template.Description,
			template.Version,
			[]byte(`[]`),
			sqlmock.AnyArg(),
			true,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, p.SaveTemplate(context.Background(), template))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_WorkflowByID(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)
	workflow := testutil.CreateTestWorkflow(testutil.CreateTestStep("log"))
	workflow.CreatedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	workflow.UpdatedAt = workflow.CreatedAt

	definition, err := json.Marshal(workflow)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT definition FROM workflows WHERE id = $1 AND is_template = $2")).
		WithArgs(workflow.ID, false).
		WillReturnRows(sqlmock.NewRows([]string{"definition"}).AddRow(definition))

	loaded, err := p.WorkflowByID(context.Background(), workflow.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, workflow.CreatedAt, loaded.CreatedAt)
	require.Len(t, loaded.Steps, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_WorkflowByIDNotFound(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT definition FROM workflows")).
		WithArgs("missing", false).
		WillReturnRows(sqlmock.NewRows([]string{"definition"}))

	loaded, err := p.WorkflowByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_Templates(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)

	first, err := json.Marshal(testutil.CreateTestWorkflow())
	require.NoError(t, err)

	second, err := json.Marshal(testutil.CreateTestWorkflow())
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT definition")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"definition"}).AddRow(first).AddRow(second))

	templates, err := p.Templates(context.Background())
	require.NoError(t, err)
	assert.Len(t, templates, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_DeleteMissing(t *testing.T) {
	t.Parallel()

	p, mock := newMockPersistence(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM workflows WHERE id = $1 AND is_template = FALSE")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.DeleteWorkflow(context.Background(), "missing")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

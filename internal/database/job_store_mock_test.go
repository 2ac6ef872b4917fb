package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucketbridge/bucketbridge/internal/auth"
	"github.com/bucketbridge/bucketbridge/internal/models"
	"github.com/bucketbridge/bucketbridge/internal/services"
)

var jobTableColumns = []string{"name", "scm", "push_trigger", "gitbucket_url", "link_enabled", "api_token"}

func systemContext() context.Context {
	return auth.WithIdentity(context.Background(), auth.System)
}

func TestJobStore_ListJobs(t *testing.T) {
	mock := NewMockPool(t)
	store := NewJobStoreWithDB(mock)

	rows := pgxmock.NewRows(jobTableColumns).
		AddRow("app", []byte(`{"type":"git","remotes":[{"name":"origin","urls":["http://h/app.git"]}]}`), true, "http://h/owner/app", true, "tok").
		AddRow("docs", []byte(`{}`), false, "", false, "")
	mock.ExpectQuery(`SELECT name, scm, push_trigger, gitbucket_url, link_enabled, api_token FROM jobs ORDER BY name`).
		WillReturnRows(rows)

	jobs, err := store.ListJobs(systemContext())

	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "app", jobs[0].Name)
	assert.True(t, jobs[0].PushTrigger)
	assert.Equal(t, models.SCMTypeGit, jobs[0].SCM.Type)
	assert.Equal(t, []string{"http://h/app.git"}, jobs[0].SCM.Remotes[0].URLs)
	assert.Equal(t, "http://h/owner/app/", jobs[0].Link.URL, "url normalized on read")
	assert.Equal(t, "tok", jobs[0].Link.APIToken)
	assert.False(t, jobs[1].Link.HasURL())
}

func TestJobStore_ListJobs_RequiresIdentity(t *testing.T) {
	mock := NewMockPool(t)
	store := NewJobStoreWithDB(mock)

	_, err := store.ListJobs(context.Background())

	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestJobStore_ListJobs_QueryError(t *testing.T) {
	mock := NewMockPool(t)
	store := NewJobStoreWithDB(mock)

	mock.ExpectQuery(`SELECT name, scm`).WillReturnError(errors.New("connection reset"))

	_, err := store.ListJobs(systemContext())

	assert.Error(t, err)
}

func TestJobStore_GetJob_NotFound(t *testing.T) {
	mock := NewMockPool(t)
	store := NewJobStoreWithDB(mock)

	mock.ExpectQuery(`SELECT name, scm`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), "missing")

	assert.ErrorIs(t, err, services.ErrJobNotFound)
}

func TestJobStore_GetJob_BadSCM(t *testing.T) {
	mock := NewMockPool(t)
	store := NewJobStoreWithDB(mock)

	rows := pgxmock.NewRows(jobTableColumns).AddRow("app", []byte(`not json`), true, "", false, "")
	mock.ExpectQuery(`SELECT name, scm`).WithArgs("app").WillReturnRows(rows)

	_, err := store.GetJob(context.Background(), "app")

	assert.ErrorContains(t, err, "failed to decode scm")
}

func TestJobStore_UpsertJob(t *testing.T) {
	mock := NewMockPool(t)
	store := NewJobStoreWithDB(mock)

	job := &models.Job{
		Name:        "app",
		PushTrigger: true,
		SCM:         models.SCM{Type: models.SCMTypeGit},
		Link:        models.JobLinkConfig{URL: " http://h/r ", LinkEnabled: true, APIToken: "t"},
	}
	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs("app", pgxmock.AnyArg(), true, "http://h/r/", true, "t").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertJob(context.Background(), job))
}

func TestJobStore_DeleteJob(t *testing.T) {
	mock := NewMockPoolWithQueryMatcher(t, pgxmock.QueryMatcherEqual)
	store := NewJobStoreWithDB(mock)

	mock.ExpectExec(`DELETE FROM jobs WHERE name = $1`).
		WithArgs("app").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM jobs WHERE name = $1`).
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.DeleteJob(context.Background(), "app"))
	assert.ErrorIs(t, store.DeleteJob(context.Background(), "gone"), services.ErrJobNotFound)
}

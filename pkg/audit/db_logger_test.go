package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger(t *testing.T) (*DBLogger, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	return logger, db
}

func TestNewDBLogger_RequiresDatabase(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLogger_LogAndSearch(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	event := NewEvent(EventTypeAccessDenied, StatusDenied)
	event.UserID = "user-1"
	event.OrganizationID = "org-1"
	event.PermissionKey = "hr.employees.manage"
	event.Reason = "PERMISSION_NOT_GRANTED"

	require.NoError(t, logger.Log(ctx, event))

	events, err := logger.Search(ctx, SearchFilter{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, EventTypeAccessDenied, got.EventType)
	assert.Equal(t, StatusDenied, got.Status)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "hr.employees.manage", got.PermissionKey)
	assert.Equal(t, "PERMISSION_NOT_GRANTED", got.Reason)
}

func TestDBLogger_LogMetadataRoundTrip(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	event := NewEvent(EventTypeRoleCreate, StatusSuccess)
	event.OrganizationID = "org-1"
	event.RoleID = "role-1"
	event.Metadata = map[string]interface{}{"role_key": "hr-manager"}

	require.NoError(t, logger.Log(ctx, event))

	events, err := logger.Search(ctx, SearchFilter{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hr-manager", events[0].Metadata["role_key"])
}

func TestDBLogger_SearchFilters(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	denied := NewEvent(EventTypeAccessDenied, StatusDenied)
	denied.UserID = "user-1"
	denied.OrganizationID = "org-1"
	require.NoError(t, logger.Log(ctx, denied))

	created := NewEvent(EventTypeRoleCreate, StatusSuccess)
	created.OrganizationID = "org-1"
	require.NoError(t, logger.Log(ctx, created))

	otherOrg := NewEvent(EventTypeRoleCreate, StatusSuccess)
	otherOrg.OrganizationID = "org-2"
	require.NoError(t, logger.Log(ctx, otherOrg))

	t.Run("by event type", func(t *testing.T) {
		events, err := logger.Search(ctx, SearchFilter{
			OrganizationID: "org-1",
			EventTypes:     []EventType{EventTypeAccessDenied},
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, denied.ID, events[0].ID)
	})

	t.Run("by status", func(t *testing.T) {
		status := StatusSuccess
		events, err := logger.Search(ctx, SearchFilter{Status: &status})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("by user", func(t *testing.T) {
		events, err := logger.Search(ctx, SearchFilter{UserID: "user-1"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, denied.ID, events[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		events, err := logger.Search(ctx, SearchFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestDBLogger_Prune(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	old := NewEvent(EventTypeAccessDenied, StatusDenied)
	old.Timestamp = time.Now().UTC().AddDate(0, 0, -120)
	old.OrganizationID = "org-1"
	require.NoError(t, logger.Log(ctx, old))

	recent := NewEvent(EventTypeAccessDenied, StatusDenied)
	recent.OrganizationID = "org-1"
	require.NoError(t, logger.Log(ctx, recent))

	pruned, err := logger.Prune(ctx, time.Now().UTC().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	events, err := logger.Search(ctx, SearchFilter{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, recent.ID, events[0].ID)
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NoError(t, logger.Log(context.Background(), NewEvent(EventTypeRoleCreate, StatusSuccess)))
	assert.NoError(t, logger.Close())
}

//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/course-sync/internal/eventsync"
	"github.com/bissquit/course-sync/internal/testutil"
	"github.com/stretchr/testify/require"
)

// resetSync delivers anything left in the queue by earlier tests and clears
// the subscriber, so each test starts from an empty queue.
func resetSync(t *testing.T) {
	t.Helper()

	testSubscriber.SetStatus(http.StatusOK)
	flushSync(t)
	require.Eventually(t, func() bool {
		testApp.SyncService().ProcessQueue(context.Background())
		return testApp.SyncService().QueueStats().Total == 0
	}, 5*time.Second, testMaxDelay)
	testSubscriber.Reset()
}

// flushSync waits for background dispatches started by emission.
func flushSync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, testApp.SyncService().Flush(ctx))
}

// processQueue drains one batch through the API once the longest backoff has passed.
func processQueue(t *testing.T, client *testutil.Client) eventsync.DispatchStats {
	t.Helper()
	time.Sleep(testMaxDelay * 2)

	resp, err := client.POST("/api/v1/sync/process", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats eventsync.DispatchStats
	testutil.DecodeData(t, resp, &stats)
	return stats
}

func createUser(t *testing.T, email, name string) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO users (email, full_name) VALUES ($1, $2) RETURNING id`, email, name,
	).Scan(&id)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = testDB.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func createEnrollment(t *testing.T, userID, courseID string) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO enrollments (user_id, course_id) VALUES ($1, $2) RETURNING id`, userID, courseID,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func emit(t *testing.T, client *testutil.Client, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := client.POST("/api/v1/sync/events", body)
	require.NoError(t, err)

	var event map[string]any
	if resp.StatusCode < 300 {
		testutil.DecodeData(t, resp, &event)
	} else {
		_ = resp.Body.Close()
	}
	return resp, event
}

func countLogs(t *testing.T, eventID, outcome string) int {
	t.Helper()
	var n int
	err := testDB.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM sync_logs WHERE event_id = $1 AND outcome = $2`, eventID, outcome,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

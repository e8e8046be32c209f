package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// newTestClient starts a throwaway Postgres container, applies the
// embedded migrations, and returns a ready Client.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	require.NoError(t, runMigrations(db, "test"))

	client := NewClientFromDB(db)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testPayload() models.ApplicationPayload {
	return models.ApplicationPayload{
		Personal: models.PersonalBlock{
			FirstName:   "Jane",
			LastName:    "Doe",
			DateOfBirth: "1990-01-01",
			SIN:         "046454286",
			Province:    "ON",
		},
	}
}

func TestCreateAndLoadRequest(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	requestID, err := client.CreateRequest(ctx, testPayload(), RequestMeta{ClientIP: "203.0.113.9", UserAgent: "test-agent"}, now)
	require.NoError(t, err)
	require.NotEmpty(t, requestID)

	req, err := client.LoadRequest(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, models.StatusQueued, req.Status)
	require.Equal(t, "Jane", req.Payload.Personal.FirstName)
	require.Equal(t, "203.0.113.9", req.ClientIP)
}

func TestLoadRequest_NotFound(t *testing.T) {
	client := newTestClient(t)
	_, err := client.LoadRequest(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReserveNext_SingleClaim(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	requestID, err := client.CreateRequest(ctx, testPayload(), RequestMeta{}, now)
	require.NoError(t, err)

	entry, err := client.ReserveNext(ctx, "worker-1", now)
	require.NoError(t, err)
	require.Equal(t, requestID, entry.JobID)
	require.Equal(t, 1, entry.Attempts)
	require.NotNil(t, entry.ReservedUntil)

	// Reserved entries aren't claimable again until the reservation expires.
	_, err = client.ReserveNext(ctx, "worker-2", now)
	require.ErrorIs(t, err, ErrNoEntriesAvailable)
}

func TestReserveNext_ReclaimAfterExpiry(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	requestID, err := client.CreateRequest(ctx, testPayload(), RequestMeta{}, now)
	require.NoError(t, err)

	_, err = client.ReserveNext(ctx, "worker-1", now)
	require.NoError(t, err)

	later := now.Add(VisibilityTimeout + time.Second)
	entry, err := client.ReserveNext(ctx, "worker-2", later)
	require.NoError(t, err)
	require.Equal(t, requestID, entry.JobID)
	require.Equal(t, 2, entry.Attempts)
}

func TestRequeue_DelaysAvailability(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	requestID, err := client.CreateRequest(ctx, testPayload(), RequestMeta{}, now)
	require.NoError(t, err)
	_, err = client.ReserveNext(ctx, "worker-1", now)
	require.NoError(t, err)

	require.NoError(t, client.Requeue(ctx, requestID, 30*time.Second, now))

	_, err = client.ReserveNext(ctx, "worker-2", now.Add(10*time.Second))
	require.ErrorIs(t, err, ErrNoEntriesAvailable)

	entry, err := client.ReserveNext(ctx, "worker-2", now.Add(31*time.Second))
	require.NoError(t, err)
	require.Equal(t, requestID, entry.JobID)
}

func TestAppendStage_AppendOnly(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	requestID, err := client.CreateRequest(ctx, testPayload(), RequestMeta{}, now)
	require.NoError(t, err)

	rec := models.StageRecord{
		RequestID: requestID,
		Stage:     models.StageRules,
		Version:   "rules-v1",
		StartedAt: now,
		EndedAt:   now.Add(5 * time.Millisecond),
		Duration:  5 * time.Millisecond,
		Output:    []byte(`{"rule_score":0.1}`),
	}
	require.NoError(t, client.AppendStage(ctx, rec))
	require.NoError(t, client.AppendStage(ctx, rec)) // replayed attempt: second record, not an update

	got, err := client.LatestStage(ctx, requestID, models.StageRules)
	require.NoError(t, err)
	require.Equal(t, "rules-v1", got.Version)
}

func TestFinalize_DecisionDequeues(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	requestID, err := client.CreateRequest(ctx, testPayload(), RequestMeta{}, now)
	require.NoError(t, err)
	_, err = client.ReserveNext(ctx, "worker-1", now)
	require.NoError(t, err)

	decision := &models.Decision{
		FinalDecision: models.DecisionApprove,
		Reasons:       []string{"rules_clean"},
		Stipulations:  []models.Stipulation{},
		PolicyVersion: "builtin",
		Timing:        map[string]int64{"rules": 1},
	}
	require.NoError(t, client.Finalize(ctx, requestID, decision, "", now))

	req, err := client.LoadRequest(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDecided, req.Status)

	got, err := client.LoadDecision(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, got.FinalDecision)

	_, err = client.ReserveNext(ctx, "worker-2", now)
	require.ErrorIs(t, err, ErrNoEntriesAvailable)
}

func TestFinalize_Failure(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	requestID, err := client.CreateRequest(ctx, testPayload(), RequestMeta{}, now)
	require.NoError(t, err)

	require.NoError(t, client.Finalize(ctx, requestID, nil, "ml service unavailable after max tries", now))

	req, err := client.LoadRequest(ctx, requestID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, req.Status)
	require.Equal(t, "ml service unavailable after max tries", req.ErrorMessage)
}

func TestSeenAndRemember(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fresh, err := client.SeenAndRemember(ctx, "key-1", "nonce-1", now, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = client.SeenAndRemember(ctx, "key-1", "nonce-1", now, 5*time.Minute)
	require.NoError(t, err)
	require.False(t, fresh)

	// Different api_key, same nonce: distinct key.
	fresh, err = client.SeenAndRemember(ctx, "key-2", "nonce-1", now, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)
}

func TestEvictExpiredNonces(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := client.SeenAndRemember(ctx, "key-1", "nonce-1", now.Add(-10*time.Minute), 5*time.Minute)
	require.NoError(t, err)

	evicted, err := client.EvictExpiredNonces(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), evicted)
}

func TestReuseCount(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r1, err := client.CreateRequest(ctx, testPayload(), RequestMeta{}, now)
	require.NoError(t, err)
	r2, err := client.CreateRequest(ctx, testPayload(), RequestMeta{}, now)
	require.NoError(t, err)

	require.NoError(t, client.RecordIdentifierSeen(ctx, r1, "phone", "hash-abc", now))

	count, err := client.ReuseCount(ctx, r2, "phone", "hash-abc", now)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// A request never sees its own record counted.
	count, err = client.ReuseCount(ctx, r1, "phone", "hash-abc", now)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// Outside the 30-day window, it no longer counts.
	count, err = client.ReuseCount(ctx, r2, "phone", "hash-abc", now.Add(31*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

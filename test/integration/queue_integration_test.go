package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/models"
	"github.com/announcehq/broadcastq/internal/storage/postgres"
)

var (
	testDB   *sql.DB
	testDSN  string
	testPort string
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	pool.MaxWait = 60 * time.Second

	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	pg, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=testuser",
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_DB=broadcastq_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start postgres container: %s", err)
	}

	testPort = pg.GetPort("5432/tcp")
	testDSN = fmt.Sprintf(
		"host=localhost user=testuser password=testpass dbname=broadcastq_test port=%s sslmode=disable TimeZone=UTC",
		testPort,
	)

	if err := pool.Retry(func() error {
		var err error
		testDB, err = sql.Open("postgres", testDSN)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := testDB.PingContext(ctx); err != nil {
			testDB.Close()
			return err
		}

		if err := runMigrations(testDB); err != nil {
			log.Printf("Failed to run migrations: %v", err)
			testDB.Close()
			return err
		}
		return nil
	}); err != nil {
		log.Fatalf("Could not connect to postgres: %s", err)
	}

	code := m.Run()

	if testDB != nil {
		testDB.Close()
	}

	if err := pool.Purge(pg); err != nil {
		log.Fatalf("Could not purge postgres container: %s", err)
	}

	os.Exit(code)
}

func runMigrations(db *sql.DB) error {
	_, filename, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(filename), "../..", "migrations")

	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", migrationsDir)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// setupTestDB returns a fresh connection with the queue tables emptied.
func setupTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	cfg := &postgres.Config{
		User:       "testuser",
		Password:   "testpass",
		Host:       "localhost",
		Port:       testPort,
		Database:   "broadcastq_test",
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		LogLevel:   logger.Silent,
	}
	db, err := postgres.ConnectDB(cfg, zerolog.Nop())
	require.NoError(tb, err)

	for _, table := range []string{"recipients", "broadcasts", "schedules", "jobs"} {
		require.NoError(tb, db.Exec("DELETE FROM "+table).Error)
	}

	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestConnectDB(t *testing.T) {
	db := setupTestDB(t)

	var result int
	require.NoError(t, db.Raw("SELECT 1").Scan(&result).Error)
	assert.Equal(t, 1, result)

	var dbName string
	require.NoError(t, db.Raw("SELECT current_database()").Scan(&dbName).Error)
	assert.Equal(t, "broadcastq_test", dbName)
}

func TestConnectDB_RetryExhaustion(t *testing.T) {
	cfg := &postgres.Config{
		User:       "testuser",
		Password:   "testpass",
		Host:       "localhost",
		Port:       "19999",
		Database:   "broadcastq_test",
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		LogLevel:   logger.Silent,
	}
	db, err := postgres.ConnectDB(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "database connection failed after 2 attempts")
}

// TestJobClaim_ConcurrentWorkers drives the claim path the way competing
// dispatcher processes would and verifies exclusivity: every job is handed
// out exactly once.
func TestJobClaim_ConcurrentWorkers(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewJobRepository(db)
	ctx := context.Background()

	const totalJobs = 40
	for i := 0; i < totalJobs; i++ {
		job := &models.Job{
			Queue:   config.QueueBroadcasts,
			Type:    config.JobTypeBroadcastSend,
			Payload: datatypes.JSON(fmt.Sprintf(`{"n":%d}`, i)),
		}
		require.NoError(t, repo.Create(ctx, job))
	}

	const workers = 4
	var (
		mu      sync.Mutex
		claimed = map[uint]int{}
		wg      sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				jobs, err := repo.Claim(ctx, 5)
				if err != nil {
					t.Errorf("claim failed: %v", err)
					return
				}
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					claimed[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, totalJobs)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %d claimed %d times", id, n)
	}

	// Everything is now processing; the pool is empty.
	jobs, err := repo.Claim(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRecipientUpsert_ConflictOnCompositeKey(t *testing.T) {
	db := setupTestDB(t)
	broadcasts := postgres.NewBroadcastRepository(db)
	recipients := postgres.NewRecipientRepository(db)
	ctx := context.Background()

	b := &models.Broadcast{ID: "11111111-1111-1111-1111-111111111111", Content: datatypes.JSON(`{"en":"hi"}`)}
	require.NoError(t, broadcasts.Create(ctx, b))

	require.NoError(t, recipients.Upsert(ctx, &models.Recipient{
		BroadcastID: b.ID, RecipientID: 99,
		Status: config.RecipientStatusFailed, ErrorCode: 429, ErrorMessage: "Too Many Requests",
	}))

	sentAt := time.Now()
	require.NoError(t, recipients.Upsert(ctx, &models.Recipient{
		BroadcastID: b.ID, RecipientID: 99,
		Status: config.RecipientStatusSent, MessageID: "m-99", SentAt: &sentAt,
	}))

	n, err := recipients.CountByBroadcast(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := recipients.ListByBroadcast(ctx, b.ID, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, config.RecipientStatusSent, recs[0].Status)
	assert.Equal(t, "m-99", recs[0].MessageID)
}

func TestRequeueStuck_Postgres(t *testing.T) {
	db := setupTestDB(t)
	repo := postgres.NewJobRepository(db)
	ctx := context.Background()

	job := &models.Job{Queue: config.QueueDefault, Type: config.JobTypeBroadcastSend}
	require.NoError(t, repo.Create(ctx, job))

	claimed, err := repo.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Backdate started_at to simulate a dispatcher that died mid-job.
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.Job{}).
		Where("id = ?", job.ID).
		Update("started_at", stale).Error)

	n, err := repo.RequeueStuck(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reclaimed, err := repo.Claim(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, job.ID, reclaimed[0].ID)
}

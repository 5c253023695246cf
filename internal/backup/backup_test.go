package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funecosystem/angel-ai/internal/storage/sqlite"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// seedDatabase creates a real database file with one user in it.
func seedDatabase(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "angel.db")

	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer store.Close()

	err = store.CreateUser(context.Background(), &types.User{
		ID:           "user-1",
		Email:        "be@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return dbPath
}

func newTestService(t *testing.T, dbPath string) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	svc, err := NewService(Config{DBPath: dbPath, Dir: dir, Verify: true})
	require.NoError(t, err)
	return svc, dir
}

func TestBackupNowCreatesVerifiedBackup(t *testing.T) {
	svc, _ := newTestService(t, seedDatabase(t))

	result, err := svc.BackupNow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Greater(t, result.Size, int64(0))

	backups, err := svc.List()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, result.Path, backups[0].Path)
}

func TestBackupNowFailsWithoutDatabase(t *testing.T) {
	svc, err := NewService(Config{
		DBPath: filepath.Join(t.TempDir(), "missing.db"),
		Dir:    t.TempDir(),
	})
	require.NoError(t, err)

	_, err = svc.BackupNow(context.Background())
	assert.Error(t, err)
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := seedDatabase(t)
	svc, _ := newTestService(t, dbPath)

	result, err := svc.BackupNow(ctx)
	require.NoError(t, err)

	// Wreck the live database, then restore.
	require.NoError(t, os.WriteFile(dbPath, []byte("garbage"), 0644))
	require.NoError(t, svc.Restore(ctx, result.Path))

	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer store.Close()

	user, err := store.GetUserByEmail(ctx, "be@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
}

func TestRestoreRejectsCorruptBackup(t *testing.T) {
	dbPath := seedDatabase(t)
	svc, dir := newTestService(t, dbPath)

	bogus := filepath.Join(dir, filePrefix+"bogus.db")
	require.NoError(t, os.WriteFile(bogus, []byte("not a database"), 0644))

	err := svc.Restore(context.Background(), bogus)
	assert.Error(t, err)
}

func TestApplyRetentionDeletesOldTiers(t *testing.T) {
	dir := t.TempDir()

	// Three fresh backups plus one ancient and one foreign file.
	ages := []time.Duration{time.Minute, 2 * time.Minute, 3 * time.Minute, 400 * 24 * time.Hour}
	for _, age := range ages {
		path := filepath.Join(dir, filePrefix+time.Now().Add(-age).Format("20060102-150405")+".db")
		require.NoError(t, os.WriteFile(path, []byte("backup"), 0644))
		require.NoError(t, os.Chtimes(path, time.Now().Add(-age), time.Now().Add(-age)))
	}
	foreign := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep me"), 0644))

	err := applyRetention(dir, Retention{Hourly: 2, Daily: 7, Weekly: 4, Monthly: 12})
	require.NoError(t, err)

	backups, err := listBackups(dir)
	require.NoError(t, err)
	// Hourly tier trimmed to 2, the year-old backup removed.
	assert.Len(t, backups, 2)

	_, err = os.Stat(foreign)
	assert.NoError(t, err)
}

func TestRetentionDefaults(t *testing.T) {
	keep := Retention{}.withDefaults()
	assert.Equal(t, 24, keep.Hourly)
	assert.Equal(t, 7, keep.Daily)
	assert.Equal(t, 4, keep.Weekly)
	assert.Equal(t, 12, keep.Monthly)
}

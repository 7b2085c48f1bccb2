package maintenance

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/companydb/internal/config"
	"github.com/saltyorg/companydb/internal/database"
)

type fakeDB struct {
	optimizeErr error
	optimized   int
	backups     []string
}

func (f *fakeDB) Optimize() error {
	f.optimized++
	return f.optimizeErr
}

func (f *fakeDB) Backup(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return database.ErrBackupExists
	}
	f.backups = append(f.backups, dest)
	return os.WriteFile(dest, []byte("backup"), 0o600)
}

// blockingDB holds Optimize until release is closed.
type blockingDB struct {
	fakeDB
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingDB) Optimize() error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

func touchBackups(t *testing.T, dir string, times ...time.Time) {
	t.Helper()

	for _, ts := range times {
		require.NoError(t, os.WriteFile(filepath.Join(dir, BackupName(ts)), nil, 0o600))
	}
}

func TestBackupName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 250*int(time.Millisecond), time.UTC)
	assert.Equal(t, "companydb-20260304-050607.250.db", BackupName(ts))
	assert.Equal(t, "companydb-20260304-050607.250_2.db", backupName(ts, 2))
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	touchBackups(t, dir, base, base.Add(time.Hour), base.Add(2*time.Hour), base.Add(3*time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.db"), nil, 0o600))

	removed, err := PruneBackups(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, BackupName(base)),
		filepath.Join(dir, BackupName(base.Add(time.Hour))),
	}, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPruneBackups_ZeroRetainKeepsAll(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	touchBackups(t, dir, base, base.Add(time.Minute))

	removed, err := PruneBackups(dir, 0)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestRunOnce_OptimizeBackupAndPrune(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	db := &fakeDB{}
	s := New(db, config.MaintenanceConfig{Schedule: "@daily", Optimize: true, BackupDir: dir, BackupRetain: 2})

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		result, err := s.RunOnce()
		require.NoError(t, err)
		assert.True(t, result.Optimized)
		assert.Equal(t, filepath.Join(dir, BackupName(base.Add(time.Duration(i)*time.Minute))), result.BackupPath)
	}

	assert.Equal(t, 3, db.optimized)
	assert.Len(t, db.backups, 3)
	assert.NoFileExists(t, db.backups[0])
	assert.FileExists(t, db.backups[1])
	assert.FileExists(t, db.backups[2])
}

func TestRunOnce_SameInstantGetsDistinctBackups(t *testing.T) {
	dir := t.TempDir()
	db := &fakeDB{}
	s := New(db, config.MaintenanceConfig{BackupDir: dir})

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return ts }

	first, err := s.RunOnce()
	require.NoError(t, err)
	second, err := s.RunOnce()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, BackupName(ts)), first.BackupPath)
	assert.Equal(t, filepath.Join(dir, backupName(ts, 1)), second.BackupPath)
	assert.FileExists(t, second.BackupPath)

	removed, err := PruneBackups(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{first.BackupPath}, removed)
}

func TestRunOnce_OptimizeFailureStopsRun(t *testing.T) {
	db := &fakeDB{optimizeErr: errors.New("database is locked")}
	s := New(db, config.MaintenanceConfig{Optimize: true, BackupDir: t.TempDir()})

	_, err := s.RunOnce()
	assert.EqualError(t, err, "database is locked")
	assert.Empty(t, db.backups)
}

func TestRunOnce_NoBackupDir(t *testing.T) {
	db := &fakeDB{}
	s := New(db, config.MaintenanceConfig{Optimize: false})

	result, err := s.RunOnce()
	require.NoError(t, err)
	assert.False(t, result.Optimized)
	assert.Empty(t, result.BackupPath)
	assert.Zero(t, db.optimized)
}

func TestRunOnce_WithSessionManager(t *testing.T) {
	m := database.New(database.Config{Path: filepath.Join(t.TempDir(), "company.db"), AutoMigrate: true})
	t.Cleanup(m.Disconnect)
	require.NoError(t, m.SeedSampleData())

	dir := t.TempDir()
	s := New(m, config.MaintenanceConfig{Optimize: true, BackupDir: dir, BackupRetain: 1})

	result, err := s.RunOnce()
	require.NoError(t, err)
	require.FileExists(t, result.BackupPath)

	err = database.Open(database.Config{Path: result.BackupPath}, func(b *database.Manager) error {
		rows, err := b.Query("SELECT COUNT(*) AS n FROM employees")
		require.NoError(t, err)
		assert.EqualValues(t, database.SampleEmployeeCount, rows[0]["n"])
		return nil
	})
	require.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	s := New(&fakeDB{}, config.MaintenanceConfig{Schedule: "@hourly"})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.False(t, s.NextRun().IsZero())

	require.NoError(t, s.Start())

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStop_WaitsForRunInFlight(t *testing.T) {
	db := &blockingDB{entered: make(chan struct{}), release: make(chan struct{})}
	s := New(db, config.MaintenanceConfig{Schedule: "@every 1s", Optimize: true})
	require.NoError(t, s.Start())

	select {
	case <-db.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run never started")
	}

	// Let further ticks fire while the first run is still blocked.
	time.Sleep(1500 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the running job finished")
	case <-time.After(200 * time.Millisecond):
	}

	assert.False(t, s.IsRunning())
	assert.Equal(t, "@every 1s", s.Config().Schedule)

	close(db.release)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the running job finished")
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(&fakeDB{}, config.MaintenanceConfig{Schedule: "every tuesday"})

	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}

func TestUpdateConfig(t *testing.T) {
	s := New(&fakeDB{}, config.MaintenanceConfig{Schedule: "@hourly"})
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	require.Error(t, s.UpdateConfig(config.MaintenanceConfig{Schedule: "not a schedule"}))
	assert.Equal(t, "@hourly", s.Config().Schedule)

	require.NoError(t, s.UpdateConfig(config.MaintenanceConfig{Schedule: "0 3 * * *", BackupRetain: 2}))
	assert.Equal(t, "0 3 * * *", s.Config().Schedule)
	assert.Equal(t, 3, s.NextRun().Hour())
	assert.Len(t, s.cron.Entries(), 1)
}

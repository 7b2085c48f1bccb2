package maintenance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/companydb/internal/config"
	"github.com/saltyorg/companydb/internal/database"
)

const (
	backupPrefix     = "companydb-"
	backupExt        = ".db"
	backupTimeFormat = "20060102-150405.000"

	maxBackupAttempts = 10
)

// Database is the subset of the session manager maintenance needs.
type Database interface {
	Optimize() error
	Backup(dest string) error
}

// Result describes one maintenance run.
type Result struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Optimized  bool          `json:"optimized"`
	BackupPath string        `json:"backup_path,omitempty"`
	Pruned     []string      `json:"pruned,omitempty"`
}

// Scheduler runs optimize and backup jobs on a cron schedule
type Scheduler struct {
	db          Database
	mu          sync.RWMutex
	config      config.MaintenanceConfig
	cron        *cron.Cron
	cronEntryID cron.EntryID
	running     bool
	runMu       sync.Mutex
	now         func() time.Time
}

// New creates a scheduler; nothing runs until Start.
func New(db Database, cfg config.MaintenanceConfig) *Scheduler {
	return &Scheduler{
		db:     db,
		config: cfg,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		now:    time.Now,
	}
}

// Start registers the configured schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := s.updateSchedule(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.running = true

	log.Info().
		Str("schedule", s.config.Schedule).
		Bool("optimize", s.config.Optimize).
		Str("backup_dir", s.config.BackupDir).
		Int("backup_retain", s.config.BackupRetain).
		Msg("Maintenance scheduler started")

	return nil
}

// Stop stops the cron loop and waits for a running job to finish. s.mu is
// released before waiting since the job reads the config under it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ctx := s.cron.Stop()
	s.mu.Unlock()

	<-ctx.Done()
	log.Info().Msg("Maintenance scheduler stopped")
}

// IsRunning returns whether the cron loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRun returns the next scheduled run, or the zero time when none is set.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cronEntryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.cronEntryID).Next
}

// Config returns the active configuration
func (s *Scheduler) Config() config.MaintenanceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// UpdateConfig swaps in a new configuration, rescheduling when the schedule
// changed. The previous schedule stays active if the new one does not parse.
func (s *Scheduler) UpdateConfig(cfg config.MaintenanceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Schedule != s.config.Schedule {
		if err := s.updateSchedule(cfg.Schedule); err != nil {
			return fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
		}
	}
	s.config = cfg

	log.Info().
		Str("schedule", cfg.Schedule).
		Bool("optimize", cfg.Optimize).
		Str("backup_dir", cfg.BackupDir).
		Int("backup_retain", cfg.BackupRetain).
		Msg("Maintenance configuration updated")

	return nil
}

// updateSchedule replaces the cron entry. Callers hold s.mu.
func (s *Scheduler) updateSchedule(schedule string) error {
	id, err := s.cron.AddFunc(schedule, s.scheduledRun)
	if err != nil {
		return err
	}

	if s.cronEntryID != 0 {
		s.cron.Remove(s.cronEntryID)
	}
	s.cronEntryID = id
	return nil
}

func (s *Scheduler) scheduledRun() {
	log.Info().Msg("Running scheduled maintenance")

	if _, err := s.RunOnce(); err != nil {
		log.Error().Err(err).Msg("Scheduled maintenance failed")
	}
}

// RunOnce optimizes the database, writes a timestamped backup into the backup
// directory and prunes backups beyond the retention count. Runs never overlap.
func (s *Scheduler) RunOnce() (result Result, err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	cfg := s.Config()
	result.StartedAt = s.now()
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if cfg.Optimize {
		if err := s.db.Optimize(); err != nil {
			return result, err
		}
		result.Optimized = true
	}

	if cfg.BackupDir != "" {
		if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
			return result, fmt.Errorf("failed to create backup directory: %w", err)
		}

		result.BackupPath, err = s.backup(cfg.BackupDir, result.StartedAt)
		if err != nil {
			return result, err
		}

		result.Pruned, err = PruneBackups(cfg.BackupDir, cfg.BackupRetain)
		if err != nil {
			return result, err
		}
	}

	log.Info().
		Bool("optimized", result.Optimized).
		Str("backup", result.BackupPath).
		Int("pruned", len(result.Pruned)).
		Msg("Maintenance run complete")

	return result, nil
}

// backup writes a backup named after t into dir, adding a numeric suffix
// when a backup with the same timestamp already exists.
func (s *Scheduler) backup(dir string, t time.Time) (string, error) {
	for attempt := range maxBackupAttempts {
		dest := filepath.Join(dir, backupName(t, attempt))
		err := s.db.Backup(dest)
		if errors.Is(err, database.ErrBackupExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return dest, nil
	}
	return "", fmt.Errorf("%w: %d backups already taken at %s", database.ErrBackupExists, maxBackupAttempts, t.UTC().Format(backupTimeFormat))
}

// BackupName returns the file name used for a backup taken at t.
func BackupName(t time.Time) string {
	return backupName(t, 0)
}

func backupName(t time.Time, attempt int) string {
	name := backupPrefix + t.UTC().Format(backupTimeFormat)
	if attempt > 0 {
		name += "_" + strconv.Itoa(attempt)
	}
	return name + backupExt
}

// PruneBackups deletes the oldest backups in dir so that at most retain
// remain. A retain of 0 keeps everything. It returns the removed paths.
func PruneBackups(dir string, retain int) ([]string, error) {
	if retain <= 0 {
		return nil, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, backupPrefix+"*"+backupExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	if len(matches) <= retain {
		return nil, nil
	}

	// Timestamped names sort chronologically.
	slices.Sort(matches)

	var removed []string
	for _, path := range matches[:len(matches)-retain] {
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove old backup %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Removed old backup")
		removed = append(removed, path)
	}

	return removed, nil
}

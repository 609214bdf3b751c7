package infra

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tradeledger/internal/logger"
	"tradeledger/internal/usecase"
)

// importJobTimeout bounds one scheduled import run
const importJobTimeout = 10 * time.Minute

// HistoryImporter is the job the scheduler runs
type HistoryImporter interface {
	Import(ctx context.Context, days int) (*usecase.ImportResult, error)
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	importer HistoryImporter
	cronSpec string
	days     int
	log      *logrus.Entry
}

// NewScheduler creates a new scheduler. cronSpec is a six-field cron expression
// (with seconds); an empty cronSpec disables the scheduled import.
func NewScheduler(importer HistoryImporter, cronSpec string, days int) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		importer: importer,
		cronSpec: cronSpec,
		days:     days,
		log:      logger.WithComponent("scheduler"),
	}
}

// Start registers the import job and starts the scheduler
func (s *Scheduler) Start() error {
	if s.cronSpec == "" {
		s.log.Info("scheduled history import disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cronSpec, s.RunNow); err != nil {
		return err
	}

	s.cron.Start()
	s.log.WithFields(logrus.Fields{"cron": s.cronSpec, "days": s.days}).Info("✓ Scheduler started successfully")
	return nil
}

// RunNow runs one import synchronously
func (s *Scheduler) RunNow() {
	ctx, cancel := context.WithTimeout(context.Background(), importJobTimeout)
	defer cancel()

	s.log.Info("[CRON] history import triggered")
	result, err := s.importer.Import(ctx, s.days)
	if err != nil {
		s.log.WithError(err).Error("scheduled history import failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}).Info("[CRON] history import done")
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	s.log.Info("Stopping scheduler...")
	<-s.cron.Stop().Done()
	s.log.Info("✓ Scheduler stopped")
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/config"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run billing, reconcile and reminder jobs on cron expressions",
	Run:   runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

type scheduledJob struct {
	name string
	spec string
	fn   func(s *service.BillingService, ctx context.Context) error
}

func scheduledJobs(cfg *config.Config) []scheduledJob {
	return []scheduledJob{
		{
			name: "billing_run",
			spec: cfg.Jobs.BillingSchedule,
			fn:   runBillingCycleJob("cron"),
		},
		{
			name: "reconcile",
			spec: cfg.Jobs.ReconcileSchedule,
			fn: func(s *service.BillingService, ctx context.Context) error {
				return s.RunReconcileBatch(ctx)
			},
		},
		{
			name: "reminders",
			spec: cfg.Jobs.RemindersSchedule,
			fn: func(s *service.BillingService, ctx context.Context) error {
				_, err := s.RunRenewalReminders(ctx)
				return err
			},
		},
	}
}

// newScheduler registers every job with a non-empty expression. Overlapping runs of the
// same job are skipped.
func newScheduler(jobs []scheduledJob, billingService *service.BillingService, ctx context.Context) (*cron.Cron, error) {
	logger := cron.PrintfLogger(logrus.WithField("module", "scheduler"))
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	for _, job := range jobs {
		spec := strings.TrimSpace(job.spec)
		if spec == "" {
			logrus.WithField("job", job.name).Info("No schedule configured, job disabled")
			continue
		}
		job := job
		if _, err := scheduler.AddFunc(spec, func() {
			runJob(job.name, func() error { return job.fn(billingService, ctx) })
		}); err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", spec, job.name, err)
		}
		logrus.WithField("job", job.name).WithField("schedule", spec).Info("Job scheduled")
	}

	return scheduler, nil
}

func runSchedule(_ *cobra.Command, _ []string) {
	cfg, billingService, cleanup := mustCreateBillingService()
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler, err := newScheduler(scheduledJobs(cfg), billingService, ctx)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure scheduler")
	}
	scheduler.Start()
	logrus.Info("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Scheduler shutdown requested")

	<-scheduler.Stop().Done()
	logrus.Info("Scheduler stopped")
}

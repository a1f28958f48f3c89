package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/config"
)

var (
	workerMode bool
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Run billing pass commands",
}

var billingRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Charge due subscriptions, then bill merchants for the platform",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"billing_run",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.BillingInterval },
			runBillingCycleJob("cli"),
		)
	},
}

var merchantsCmd = &cobra.Command{
	Use:   "merchants",
	Short: "Run merchant related commands",
}

var merchantsChargeCmd = &cobra.Command{
	Use:   "charge",
	Short: "Charge merchants whose platform subscription is due",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"merchants_charge",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.MerchantBillingInterval },
			func(s *service.BillingService, ctx context.Context) error {
				summary, failures, err := s.RunMerchantBilling(ctx)
				logrus.WithFields(logrus.Fields{
					"job":        "merchants_charge",
					"processed":  summary.Processed,
					"successful": summary.Successful,
					"failed":     summary.Failed,
					"skipped":    summary.Skipped,
				}).Info("merchant billing summary")
				if err != nil {
					return err
				}
				if len(failures) > 0 {
					return errors.New(strings.Join(failures, "; "))
				}
				return nil
			},
		)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve invoices left in processing by an interrupted charge",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(s *service.BillingService, ctx context.Context) error {
				return s.RunReconcileBatch(ctx)
			},
		)
	},
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Send renewal reminders for upcoming charges",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reminders",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.RemindersInterval },
			func(s *service.BillingService, ctx context.Context) error {
				sent, err := s.RunRenewalReminders(ctx)
				logrus.WithField("job", "reminders").WithField("sent", sent).Info("renewal reminders sent")
				return err
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(billingCmd)
	rootCmd.AddCommand(merchantsCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(remindersCmd)
	billingCmd.AddCommand(billingRunCmd)
	merchantsCmd.AddCommand(merchantsChargeCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runBillingCycleJob(trigger string) func(s *service.BillingService, ctx context.Context) error {
	return func(s *service.BillingService, ctx context.Context) error {
		summary, err := s.RunBillingCycle(ctx, trigger)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"job":                      "billing_run",
			"subscriptions_processed":  summary.SubscriptionCharges.Processed,
			"subscriptions_successful": summary.SubscriptionCharges.Successful,
			"subscriptions_failed":     summary.SubscriptionCharges.Failed,
			"merchants_processed":      summary.MerchantCharges.Processed,
			"errors":                   len(summary.Errors),
		}).Info("billing cycle summary")
		return nil
	}
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.BillingService, ctx context.Context) error,
) {
	cfg, billingService, cleanup := mustCreateBillingService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), billingService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(billingService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	billingService *service.BillingService,
	fn func(s *service.BillingService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(billingService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(billingService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}

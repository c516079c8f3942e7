package engine

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/timaxleno1/planipro/database"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// InitializeSchedules starts the housekeeping cron jobs: the upload TTL sweep,
// the manifest reconcile and the job record cleanup. The caller stops the
// returned scheduler on shutdown.
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	interval := serverHandler.ServerConfig.SweepInterval
	if interval < 1 {
		interval = 10
	}

	// Reconcile once at startup so the manifest covers whatever is already on disk
	Logger.Info("Running manifest reconcile at startup")
	if _, err := serverHandler.startTrackedJob(database.JobTypeReconcile, "Startup manifest reconcile", serverHandler.reconcileJobFuncWithTracking); err != nil {
		Logger.Error("Unable to start reconcile job", "error", err)
	}

	c := cron.New()
	chain := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)) //ensure we don't kick off another if old one is still running

	var sweepJob cron.Job = cron.FuncJob(serverHandler.sweepJobFunc)
	c.AddJob(fmt.Sprintf("@every %dm", interval), chain.Then(sweepJob))
	Logger.Info("Adding session sweep scheduler", "interval_minutes", interval, "ttl", serverHandler.ServerConfig.SessionTTL)

	var reconcileJob cron.Job = cron.FuncJob(func() {
		serverHandler.runTrackedJob(database.JobTypeReconcile, "Scheduled manifest reconcile", serverHandler.reconcileJobFuncWithTracking)
	})
	c.AddJob(fmt.Sprintf("@every %dm", interval), chain.Then(reconcileJob))
	Logger.Info("Adding manifest reconcile scheduler", "interval_minutes", interval)

	var cleanupJob cron.Job = cron.FuncJob(func() {
		serverHandler.runTrackedJob(database.JobTypeCleanup, "Scheduled job cleanup", serverHandler.cleanupJobFuncWithTracking)
	})
	c.AddJob("@daily", chain.Then(cleanupJob))
	Logger.Info("Adding job cleanup scheduler", "retention", jobRetention)

	c.Start()
	return c
}

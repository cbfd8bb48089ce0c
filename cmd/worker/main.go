// Command worker runs every outbox-driven background loop described in
// spec.md §4.7/§5: one goroutine per worker, each ticking Deps.Store's
// claimed messages forward through a committer.Committer, sharing the
// dependency bundle internal/bootstrap assembles from the environment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/settld/core/internal/artifact"
	"github.com/settld/core/internal/bootstrap"
	"github.com/settld/core/internal/delivery"
	"github.com/settld/core/internal/outbox/bridge"
	"github.com/settld/core/internal/outbox/schedule"
	"github.com/settld/core/internal/outbox/workers"
)

func main() {
	cfg, err := bootstrap.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "settld-worker: load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "settld-worker: build dependencies: %v\n", err)
		os.Exit(1)
	}

	workerDeps := workers.Deps{
		Store:     deps.Store,
		Committer: deps.Committer,
		Logger:    deps.Logger,
	}

	tickInterval := secondsDuration(cfg.WorkerTickSeconds)

	dispatch := &workers.Dispatch{Deps: workerDeps, Fleet: deps.Fleet}
	operatorQueue := &workers.OperatorQueue{Deps: workerDeps, Fleet: deps.Fleet}
	robotHealth := &workers.RobotHealth{Deps: workerDeps}
	jobAccounting := &workers.JobAccounting{Deps: workerDeps}
	proof := &workers.Proof{Deps: workerDeps}
	artifactWorker := &workers.Artifact{
		Deps:     workerDeps,
		Builder:  artifact.Builder{Index: deps.ArtifactIndex},
		Delivery: deps.DeliveryEnqueuer,
	}
	monthClose := &workers.MonthClose{
		Deps:     workerDeps,
		Holds:    deps.HoldPolicy,
		Accounts: deps.AccountMap,
		Packs:    deps.FinancePacks,
		GateMode: workers.GateMode(cfg.MonthCloseGateMode),
	}
	evidenceRetention := &workers.EvidenceRetention{
		Deps:    workerDeps,
		Objects: deps.EvidenceObjects,
		Policy:  deps.EvidenceRetention,
	}
	deliveryWorker := &workers.Delivery{
		Deps:         workerDeps,
		Store:        deps.DeliveryRows,
		Destinations: deps.Destinations,
		Artifacts:    deps.ArtifactIndex,
		Webhook:      &delivery.HTTPWebhookTransport{},
		S3:           &delivery.S3PresignedTransport{},
		Pacer:        delivery.NewPacer(50, 10),
		Backoff:      delivery.DefaultBackoff(),
		Metrics:      deps.Metrics,
	}
	retentionCleanup := &workers.RetentionCleanup{
		Deps:      workerDeps,
		Purger:    deps.Retention,
		Lock:      deps.AdvisoryLock,
		Metrics:   deps.Metrics,
		BatchSize: cfg.RetentionBatchSize,
	}
	liveness := &workers.Liveness{
		Deps:             workerDeps,
		ActiveJobStreams: deps.Store.ActiveJobStreams,
	}

	var wg sync.WaitGroup

	runTick := func(name string, interval time.Duration, tick func(context.Context, int) (int, error)) {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n, err := tick(ctx, cfg.WorkerMaxMessages); err != nil {
						deps.Logger.Errorf("settld-worker: %s: %v", name, err)
					} else if n > 0 {
						deps.Logger.Infof("settld-worker: %s processed %d", name, n)
					}
				}
			}
		}()
	}

	runTick("dispatch", tickInterval, dispatch.Tick)
	runTick("operator-queue", tickInterval, operatorQueue.Tick)
	runTick("robot-health", tickInterval, robotHealth.Tick)
	runTick("job-accounting", tickInterval, jobAccounting.Tick)
	runTick("proof", tickInterval, proof.Tick)
	runTick("artifact", tickInterval, artifactWorker.Tick)
	runTick("evidence-retention", tickInterval, evidenceRetention.Tick)
	runTick("delivery", tickInterval, deliveryWorker.Tick)

	runTick("month-close", tickInterval, func(ctx context.Context, max int) (int, error) {
		return monthClose.Tick(ctx, max, deps.Metrics)
	})

	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(secondsDuration(cfg.LivenessTickSeconds))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, tenantID := range cfg.LivenessTenants {
					if n, err := liveness.Tick(ctx, tenantID, 0); err != nil {
						deps.Logger.Errorf("settld-worker: liveness(%s): %v", tenantID, err)
					} else if n > 0 {
						deps.Logger.Infof("settld-worker: liveness(%s) processed %d", tenantID, n)
					}
				}
			}
		}
	}()

	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(secondsDuration(cfg.RetentionCleanupTickSeconds))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := retentionCleanup.Run(ctx); err != nil {
					deps.Logger.Errorf("settld-worker: retention-cleanup: %v", err)
				}
			}
		}
	}()

	if cfg.AMQPURL != "" {
		conn := &bridge.Connection{AMQPURL: cfg.AMQPURL, Exchange: cfg.AMQPExchange, Logger: deps.Logger}
		if err := conn.Connect(ctx); err != nil {
			deps.Logger.Errorf("settld-worker: connect amqp bridge: %v", err)
		} else {
			outboxBridge := &bridge.Bridge{Store: deps.Store, Conn: conn}
			runTick("outbox-bridge", tickInterval, func(ctx context.Context, max int) (int, error) {
				return outboxBridge.Tick(ctx, cfg.BridgeTopic, max)
			})
		}
	}

	var monthCloseScheduler *schedule.MonthCloseScheduler

	if len(cfg.MonthCloseCronTenants) > 0 && cfg.MonthCloseCronMonth != "" {
		triggers := make([]schedule.MonthCloseTrigger, 0, len(cfg.MonthCloseCronTenants))
		for _, tenantID := range cfg.MonthCloseCronTenants {
			triggers = append(triggers, schedule.MonthCloseTrigger{
				TenantID: tenantID,
				MonthID:  cfg.MonthCloseCronMonth,
				CronExpr: cfg.MonthCloseCronExpr,
			})
		}

		monthCloseScheduler = &schedule.MonthCloseScheduler{Store: deps.Store, Committer: deps.Committer, Logger: deps.Logger}
		if err := monthCloseScheduler.Start(ctx, triggers); err != nil {
			deps.Logger.Errorf("settld-worker: start month-close scheduler: %v", err)
			monthCloseScheduler = nil
		}
	}

	deps.Logger.Infof("settld-worker: started, tick interval %s", tickInterval)

	<-ctx.Done()
	deps.Logger.Infof("settld-worker: shutting down")

	if monthCloseScheduler != nil {
		monthCloseScheduler.Stop()
	}

	wg.Wait()
}

func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

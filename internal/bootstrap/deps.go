package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/settld/core/internal/committer"
	"github.com/settld/core/internal/metrics"
	"github.com/settld/core/internal/outbox/workers"
	"github.com/settld/core/internal/ratelimit"
	"github.com/settld/core/internal/store/memory"
	"github.com/settld/core/internal/store/postgres"
	"github.com/settld/core/pkg/obs/log"
)

// secondsDuration converts a Config field expressed in whole seconds into a
// time.Duration, the unit every ticker and timeout in cmd/server/cmd/worker
// is built from.
func secondsDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// EventStore is the store surface both cmd/server and cmd/worker need: the
// narrow store.Store contract, the outbox claim/ack/fail extension every
// worker drives, and the liveness worker's active-stream scan. Both
// store/memory.Store and store/postgres.Store satisfy it.
type EventStore interface {
	workers.OutboxStore
	ActiveJobStreams(tenantID string) ([]string, error)
}

// Deps bundles every dependency cmd/server and cmd/worker share, constructed
// once from Config and handed to whichever binary needs it. The auxiliary
// fixtures (Destinations, ArtifactIndex, FinancePacks, ...) are always the
// in-memory implementations regardless of StoreDriver; postgres.DeliveryStore
// and postgres.AdvisoryLock exist but are not wired in here.
type Deps struct {
	Config *Config

	Logger    log.Logger
	Store     EventStore
	Committer *committer.Committer
	Metrics   *metrics.Metrics
	RateLimit *ratelimit.Limiter
	Retention workers.RetentionPurger

	Fleet             *memory.Fleet
	Destinations      *memory.Destinations
	ArtifactIndex     *memory.ArtifactIndex
	FinancePacks      *memory.FinancePacks
	AccountMap        *memory.AccountMap
	HoldPolicy        *memory.HoldPolicy
	EvidenceObjects   *memory.EvidenceObjects
	EvidenceRetention *memory.EvidenceRetention
	DeliveryRows      *memory.DeliveryStore
	DeliveryEnqueuer  *memory.DeliveryEnqueuer
	AdvisoryLock      *memory.AdvisoryLock
}

// New constructs every shared dependency from cfg. The returned Deps' Store
// is a *memory.Store unless cfg.StoreDriver is "postgres", in which case the
// Postgres connection is dialed and migrated before returning.
func New(ctx context.Context, cfg *Config) (*Deps, error) {
	logger, err := log.NewZap(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build logger: %w", err)
	}

	deliveryRows := memory.NewDeliveryStore()
	destinations := memory.NewDestinations()
	evidenceRetention := memory.NewEvidenceRetention()
	evidenceRetention.SetDays("", cfg.EvidenceRetentionDefaultDays)

	deps := &Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),

		Fleet:             memory.NewFleet(),
		Destinations:      destinations,
		ArtifactIndex:     memory.NewArtifactIndex(),
		FinancePacks:      memory.NewFinancePacks(),
		AccountMap:        memory.NewAccountMap(),
		HoldPolicy:        memory.NewHoldPolicy(),
		EvidenceObjects:   memory.NewEvidenceObjects(),
		EvidenceRetention: evidenceRetention,
		DeliveryRows:      deliveryRows,
		AdvisoryLock:      memory.NewAdvisoryLock(),
	}
	deps.DeliveryEnqueuer = &memory.DeliveryEnqueuer{Rows: deliveryRows, Destinations: destinations}

	switch cfg.StoreDriver {
	case "postgres":
		conn := &postgres.Connection{ConnectionString: cfg.PostgresURL, Logger: logger}
		if err := conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}

		store := postgres.New(conn)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: migrate postgres: %w", err)
		}

		deps.Store = store
		deps.Retention = postgres.Retention{Store: store}

	case "memory", "":
		store := memory.New()
		deps.Store = store
		deps.Retention = memory.Retention{Store: store, Delivery: deliveryRows}

	default:
		return nil, fmt.Errorf("bootstrap: unknown SETTLD_STORE_DRIVER %q", cfg.StoreDriver)
	}

	deps.Committer = committer.New(deps.Store)

	if cfg.RedisURL != "" {
		conn := &ratelimit.Connection{ConnectionString: cfg.RedisURL, Logger: logger}
		if err := conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: connect redis: %w", err)
		}

		deps.RateLimit = &ratelimit.Limiter{
			Conn:     conn,
			Capacity: cfg.RateLimitCapacity,
			Window:   secondsDuration(cfg.RateLimitWindowSeconds),
		}
	}

	return deps, nil
}

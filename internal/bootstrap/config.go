// Package bootstrap assembles the dependencies cmd/server and cmd/worker
// both need from a single environment-driven Config, the way the teacher's
// component bootstrap packages build one Config/Service pair consumed by a
// thin cmd/app/main.go. Grounded on pkg/obs/config's env-tag Load and on
// internal/httpapi.App/internal/outbox/workers' constructor shapes.
package bootstrap

import (
	"fmt"

	"github.com/settld/core/pkg/obs/config"
)

// Config is the full environment-driven configuration surface for both
// settld binaries. cmd/server reads only the HTTP-relevant fields; cmd/worker
// reads only the worker-relevant ones — each binary loads the same Config so
// there is exactly one env-var contract for local dev and deploy manifests
// to agree on.
type Config struct {
	ServiceName  string `env:"SETTLD_SERVICE_NAME" envDefault:"settld"`
	BuildVersion string `env:"SETTLD_BUILD_VERSION" envDefault:"dev"`
	LogLevel     string `env:"SETTLD_LOG_LEVEL" envDefault:"info"`
	Env          string `env:"SETTLD_ENV" envDefault:"development"`

	HTTPAddr string `env:"SETTLD_HTTP_ADDR" envDefault:":8080"`

	// StoreDriver selects the store.Store backing the event log: "memory"
	// for local dev and tests, "postgres" for every other deployment.
	StoreDriver string `env:"SETTLD_STORE_DRIVER" envDefault:"memory"`
	PostgresURL string `env:"SETTLD_POSTGRES_URL"`

	// RedisURL backs the per-tenant rate limiter. Left empty, no Limiter is
	// built and writes are allowed through rather than failing closed.
	RedisURL string `env:"SETTLD_REDIS_URL"`

	RateLimitCapacity      int `env:"SETTLD_RATE_LIMIT_CAPACITY" envDefault:"120"`
	RateLimitWindowSeconds int `env:"SETTLD_RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`

	JWTSecret         string `env:"SETTLD_JWT_SECRET" envRequired:"true"`
	ExportsHMACSecret string `env:"SETTLD_EXPORTS_HMAC_SECRET" envRequired:"true"`

	// WorkerTickSeconds is the ticker interval every outbox-driven worker in
	// cmd/worker shares; WorkerMaxMessages bounds how many messages a single
	// tick claims.
	WorkerTickSeconds int `env:"SETTLD_WORKER_TICK_SECONDS" envDefault:"2"`
	WorkerMaxMessages int `env:"SETTLD_WORKER_MAX_MESSAGES" envDefault:"50"`

	// LivenessTickSeconds/LivenessTenants drive the liveness worker, which
	// is not outbox-triggered and so ticks against an explicit tenant list
	// instead (spec.md has no tenant directory to enumerate from).
	LivenessTickSeconds int      `env:"SETTLD_LIVENESS_TICK_SECONDS" envDefault:"15"`
	LivenessTenants     []string `env:"SETTLD_LIVENESS_TENANTS" envDefault:"default"`

	RetentionCleanupTickSeconds int `env:"SETTLD_RETENTION_CLEANUP_TICK_SECONDS" envDefault:"300"`
	RetentionBatchSize          int `env:"SETTLD_RETENTION_BATCH_SIZE" envDefault:"500"`

	EvidenceRetentionDefaultDays int `env:"SETTLD_EVIDENCE_RETENTION_DEFAULT_DAYS" envDefault:"90"`

	MonthCloseGateMode string `env:"SETTLD_MONTH_CLOSE_GATE_MODE" envDefault:"warn"`

	// MonthCloseCronTenants/MonthCloseCronMonth/MonthCloseCronExpr configure
	// the scheduled MONTH_CLOSE_REQUESTED trigger (internal/outbox/schedule):
	// one cron entry per tenant in the list, all sharing the same month id
	// and cron expression. Left empty, no schedule runs and month-close stays
	// operator-triggered via POST /ops/months/:id/close-request.
	MonthCloseCronTenants []string `env:"SETTLD_MONTH_CLOSE_CRON_TENANTS"`
	MonthCloseCronMonth   string   `env:"SETTLD_MONTH_CLOSE_CRON_MONTH"`
	MonthCloseCronExpr    string   `env:"SETTLD_MONTH_CLOSE_CRON_EXPR" envDefault:"0 0 1 * *"`

	// AMQPURL enables the outbox-to-RabbitMQ bridge (internal/outbox/bridge)
	// when set; left empty, the bridge does not start.
	AMQPURL      string `env:"SETTLD_AMQP_URL"`
	AMQPExchange string `env:"SETTLD_AMQP_EXCHANGE" envDefault:"settld.events"`
	BridgeTopic  string `env:"SETTLD_BRIDGE_TOPIC" envDefault:"JOB_SETTLED"`
}

// Load reads Config from the environment, optionally via a .env file at
// envFile (ignored if it doesn't exist).
func Load(envFile string) (*Config, error) {
	var cfg Config
	if err := config.Load(envFile, &cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}

	return &cfg, nil
}

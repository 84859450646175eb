// Package ledger parses ledger command flags and starts the wallet runtime.
package ledger

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/walletsaga/internal/platform/cmd"
	server "github.com/louisbranch/walletsaga/internal/services/ledger/app"
	"github.com/louisbranch/walletsaga/internal/services/ledger/publish"
)

// Config holds ledger command configuration.
type Config struct {
	HTTPAddr string `env:"WALLETSAGA_LEDGER_HTTP_ADDR" envDefault:":8080"`
	GRPCPort int    `env:"WALLETSAGA_LEDGER_GRPC_PORT" envDefault:"8081"`
	DBPath   string `env:"WALLETSAGA_LEDGER_DB_PATH" envDefault:"data/ledger.db"`

	TransferTimeout    time.Duration `env:"WALLETSAGA_TRANSFER_TIMEOUT" envDefault:"20s"`
	RouterPollInterval time.Duration `env:"WALLETSAGA_ROUTER_POLL_INTERVAL" envDefault:"250ms"`
	RouterBatchSize    int           `env:"WALLETSAGA_ROUTER_BATCH_SIZE" envDefault:"64"`
	TimerPollInterval  time.Duration `env:"WALLETSAGA_TIMER_POLL_INTERVAL" envDefault:"500ms"`
	StepRetries        int           `env:"WALLETSAGA_WORKFLOW_STEP_RETRIES" envDefault:"3"`

	Publisher    string   `env:"WALLETSAGA_PUBLISHER" envDefault:"log"`
	AMQPURL      string   `env:"WALLETSAGA_AMQP_URL"`
	AMQPExchange string   `env:"WALLETSAGA_AMQP_EXCHANGE" envDefault:"wallet-events"`
	KafkaBrokers []string `env:"WALLETSAGA_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"WALLETSAGA_KAFKA_TOPIC" envDefault:"wallet-events"`
	RedisAddr    string   `env:"WALLETSAGA_REDIS_ADDR"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP API listen address")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The gRPC health port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the ledger SQLite database")
	fs.DurationVar(&cfg.TransferTimeout, "transfer-timeout", cfg.TransferTimeout, "How long a choreographed transfer may stay unresolved")
	fs.StringVar(&cfg.Publisher, "publisher", cfg.Publisher, "Public event publisher: log, rabbitmq, kafka or none")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the balance view (empty uses SQLite)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) serverConfig() server.Config {
	return server.Config{
		HTTPAddr:           c.HTTPAddr,
		GRPCPort:           c.GRPCPort,
		DBPath:             c.DBPath,
		TransferTimeout:    c.TransferTimeout,
		RouterPollInterval: c.RouterPollInterval,
		RouterBatchSize:    c.RouterBatchSize,
		TimerPollInterval:  c.TimerPollInterval,
		StepRetries:        c.StepRetries,
		Publisher: publish.Config{
			Kind:         publish.Kind(c.Publisher),
			AMQPURL:      c.AMQPURL,
			AMQPExchange: c.AMQPExchange,
			KafkaBrokers: c.KafkaBrokers,
			KafkaTopic:   c.KafkaTopic,
		},
		RedisAddr: c.RedisAddr,
	}
}

// Run starts the ledger service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedger, func(ctx context.Context) error {
		return server.Run(ctx, cfg.serverConfig())
	})
}

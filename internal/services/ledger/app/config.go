package server

import (
	"path/filepath"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/publish"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/integrity"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultTransferTimeout = 20 * time.Second
	defaultSnapshotEvery   = 50
	redisKeyPrefix         = "walletsaga"
)

// Config controls how the ledger process is assembled.
type Config struct {
	// HTTPAddr is the API listen address.
	HTTPAddr string
	// GRPCPort is the health endpoint port; 0 picks a free port.
	GRPCPort int
	// DBPath is the SQLite file; its directory is created when missing.
	DBPath string

	TransferTimeout    time.Duration
	RouterPollInterval time.Duration
	RouterBatchSize    int
	RouterWorkers      int
	TimerPollInterval  time.Duration
	StepRetries        int
	SnapshotEvery      uint64

	Publisher publish.Config
	// RedisAddr selects the Redis balance view when set.
	RedisAddr string

	// Keyring signs events. When nil it is loaded from the environment.
	Keyring *integrity.Keyring
	Now     func() time.Time
}

func (c Config) normalized() Config {
	if c.HTTPAddr == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join("data", "ledger.db")
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = defaultTransferTimeout
	}
	if c.SnapshotEvery == 0 {
		c.SnapshotEvery = defaultSnapshotEvery
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

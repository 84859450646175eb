package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/walletsaga/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/walletsaga/internal/platform/grpc"
	"github.com/louisbranch/walletsaga/internal/platform/timeouts"
	server "github.com/louisbranch/walletsaga/internal/services/ledger/app"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transfer"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/workflow"
	"github.com/louisbranch/walletsaga/internal/services/ledger/service"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/integrity"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/sqlite"
)

// Config holds maintenance command configuration.
type Config struct {
	DBPath  string        `env:"WALLETSAGA_LEDGER_DB_PATH" envDefault:"data/ledger.db"`
	Timeout time.Duration `env:"WALLETSAGA_MAINTENANCE_TIMEOUT" envDefault:"10m"`

	Verify                 bool
	JSONOutput             bool
	OutboxReport           bool
	OutboxStatus           string
	OutboxLimit            int
	OutboxRequeueDead      bool
	OutboxRequeueDeadLimit int
	Attempts               bool
	AttemptsLimit          int
	OpenTransfers          bool
	HealthAddr             string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{OutboxLimit: 50, AttemptsLimit: 50}
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the ledger sqlite database (default: WALLETSAGA_LEDGER_DB_PATH or data/ledger.db)")
	fs.BoolVar(&cfg.Verify, "verify", false, "verify the hash chain and signature of every event stream")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.BoolVar(&cfg.OutboxReport, "outbox-report", false, "report router outbox depth and rows")
	fs.StringVar(&cfg.OutboxStatus, "outbox-status", "", "optional outbox status filter (pending|processing|failed|dead)")
	fs.IntVar(&cfg.OutboxLimit, "outbox-limit", cfg.OutboxLimit, "max outbox rows to list")
	fs.BoolVar(&cfg.OutboxRequeueDead, "outbox-requeue-dead", false, "requeue a bounded batch of dead outbox rows")
	fs.IntVar(&cfg.OutboxRequeueDeadLimit, "outbox-requeue-dead-limit", 0, "max dead outbox rows to requeue (required with -outbox-requeue-dead)")
	fs.BoolVar(&cfg.Attempts, "attempts", false, "list recent reactor delivery attempts")
	fs.IntVar(&cfg.AttemptsLimit, "attempts-limit", cfg.AttemptsLimit, "max attempts to list")
	fs.BoolVar(&cfg.OpenTransfers, "open-transfers", false, "list sagas and workflows that have not reached a terminal state")
	fs.StringVar(&cfg.HealthAddr, "health-addr", "", "probe a running ledger's gRPC health endpoint at this address")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command selected by cfg.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if err := validateModes(cfg); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.HealthAddr) != "" {
		return runHealthProbe(ctx, cfg.HealthAddr, cfg.JSONOutput, out)
	}

	store, err := openLedgerStore(cfg.DBPath)
	if err != nil {
		return err
	}
	return runWithStore(ctx, cfg, store, time.Now().UTC(), out, errOut)
}

func validateModes(cfg Config) error {
	selected := make([]string, 0, 1)
	for name, on := range map[string]bool{
		"-verify":              cfg.Verify,
		"-outbox-report":       cfg.OutboxReport,
		"-outbox-requeue-dead": cfg.OutboxRequeueDead,
		"-attempts":            cfg.Attempts,
		"-open-transfers":      cfg.OpenTransfers,
		"-health-addr":         strings.TrimSpace(cfg.HealthAddr) != "",
	} {
		if on {
			selected = append(selected, name)
		}
	}
	switch {
	case len(selected) == 0:
		return errors.New("one of -verify, -outbox-report, -outbox-requeue-dead, -attempts, -open-transfers or -health-addr is required")
	case len(selected) > 1:
		return fmt.Errorf("choose a single mode, got %d", len(selected))
	}
	if cfg.OutboxReport && cfg.OutboxLimit <= 0 {
		return errors.New("-outbox-limit must be > 0")
	}
	if cfg.OutboxRequeueDead && cfg.OutboxRequeueDeadLimit <= 0 {
		return errors.New("-outbox-requeue-dead-limit must be > 0")
	}
	if cfg.Attempts && cfg.AttemptsLimit <= 0 {
		return errors.New("-attempts-limit must be > 0")
	}
	return nil
}

// runWithStore runs one store-backed mode and owns closing the store.
func runWithStore(ctx context.Context, cfg Config, store ledgerStore, now time.Time, out io.Writer, errOut io.Writer) error {
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "Error: close ledger store: %v\n", err)
		}
	}()

	switch {
	case cfg.Verify:
		return runVerify(ctx, store, cfg.JSONOutput, out)
	case cfg.OutboxReport:
		return runOutboxReport(ctx, store, cfg.OutboxStatus, cfg.OutboxLimit, cfg.JSONOutput, out)
	case cfg.OutboxRequeueDead:
		return runOutboxRequeueDeadRows(ctx, store, cfg.OutboxRequeueDeadLimit, now, cfg.JSONOutput, out)
	case cfg.Attempts:
		return runAttemptsReport(ctx, store, cfg.AttemptsLimit, cfg.JSONOutput, out)
	case cfg.OpenTransfers:
		return runOpenTransfers(ctx, store, cfg.JSONOutput, out)
	}
	return nil
}

type verifyReport struct {
	Mode  string `json:"mode"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func runVerify(ctx context.Context, verifier integrityVerifier, jsonOutput bool, out io.Writer) error {
	verifyErr := verifier.VerifyEventIntegrity(ctx)
	if jsonOutput {
		report := verifyReport{Mode: "verify", OK: verifyErr == nil}
		if verifyErr != nil {
			report.Error = verifyErr.Error()
		}
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else if verifyErr == nil {
		fmt.Fprintln(out, "Event integrity verified")
	}
	if verifyErr != nil {
		return fmt.Errorf("verify event integrity: %w", verifyErr)
	}
	return nil
}

type openTransfersReport struct {
	Mode      string   `json:"mode"`
	Sagas     []string `json:"sagas"`
	Workflows []string `json:"workflows"`
}

func runOpenTransfers(ctx context.Context, lister openStreamLister, jsonOutput bool, out io.Writer) error {
	sagas, err := lister.ListOpenStreams(ctx, transfer.AggregateType, transfer.EventTypeCompleted, transfer.EventTypeCancelled)
	if err != nil {
		return fmt.Errorf("list open sagas: %w", err)
	}
	workflows, err := lister.ListOpenStreams(ctx, workflow.AggregateType, workflow.EventTypeCompleted, workflow.EventTypeCancelled)
	if err != nil {
		return fmt.Errorf("list open workflows: %w", err)
	}
	if jsonOutput {
		return writeJSON(out, openTransfersReport{Mode: "open-transfers", Sagas: sagas, Workflows: workflows})
	}
	fmt.Fprintf(out, "Open sagas: %d\n", len(sagas))
	for _, id := range sagas {
		fmt.Fprintf(out, "- %s\n", id)
	}
	fmt.Fprintf(out, "Open workflows: %d\n", len(workflows))
	for _, id := range workflows {
		fmt.Fprintf(out, "- %s\n", id)
	}
	return nil
}

type healthReport struct {
	Mode     string            `json:"mode"`
	Addr     string            `json:"addr"`
	Services map[string]string `json:"services"`
}

func runHealthProbe(ctx context.Context, addr string, jsonOutput bool, out io.Writer) error {
	conn, err := platformgrpc.DialWithHealth(ctx, addr, timeouts.GRPCDial, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	statuses, err := platformgrpc.ProbeServices(ctx, conn, server.HealthServices...)
	if err != nil {
		return err
	}
	report := healthReport{Mode: "health", Addr: addr, Services: make(map[string]string, len(statuses))}
	unhealthy := 0
	for _, status := range statuses {
		value := status.Status.String()
		if status.Err != nil {
			value = status.Err.Error()
		}
		if !status.Serving() {
			unhealthy++
		}
		report.Services[status.Service] = value
	}
	if jsonOutput {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		for _, status := range statuses {
			fmt.Fprintf(out, "%s: %s\n", status.Service, report.Services[status.Service])
		}
	}
	if unhealthy > 0 {
		return fmt.Errorf("%d ledger loops not serving", unhealthy)
	}
	return nil
}

func writeJSON(out io.Writer, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

func openLedgerStore(path string) (*sqlite.Store, error) {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == "" {
		return nil, fmt.Errorf("ledger db path is required")
	}
	if _, err := os.Stat(cleanPath); err != nil {
		return nil, fmt.Errorf("ledger db %s: %w", cleanPath, err)
	}
	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		return nil, err
	}
	registries, err := service.BuildRegistries()
	if err != nil {
		return nil, fmt.Errorf("build registries: %w", err)
	}
	store, err := sqlite.Open(cleanPath, keyring, registries.Events)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	return store, nil
}

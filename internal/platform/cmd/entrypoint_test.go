package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Address string `env:"CMD_TEST_ADDRESS" envDefault:"127.0.0.1:8080"`
	Mode    string `env:"CMD_TEST_MODE" envDefault:"server"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("CMD_TEST_MODE", "env-mode")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfgRef := testConfig{}
	if err := ParseConfig(&cfgRef); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfgRef.Address, "address", cfgRef.Address, "address")
	fs.StringVar(&cfgRef.Mode, "mode", cfgRef.Mode, "mode")

	if err := ParseArgs(fs, []string{"-address", "flag:9001"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfgRef.Address != "flag:9001" {
		t.Fatalf("expected flag value for address, got %q", cfgRef.Address)
	}
	if cfgRef.Mode != "env-mode" {
		t.Fatalf("expected env default mode, got %q", cfgRef.Mode)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(nil, "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(nil, ServiceLedger, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}

func TestRunWithTelemetryTreatsCancelAsCleanShutdown(t *testing.T) {
	t.Setenv("WALLETSAGA_OTEL_ENDPOINT", "")

	ctx, cancel := context.WithCancel(context.Background())
	err := RunWithTelemetry(ctx, ServiceLedger, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return fmt.Errorf("serve: %w", ctx.Err())
	})
	if err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestRunWithTelemetryReturnsRunError(t *testing.T) {
	t.Setenv("WALLETSAGA_OTEL_ENDPOINT", "")

	want := errors.New("open ledger store")
	err := RunWithTelemetry(context.Background(), ServiceMaintenance, func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestRunWithTelemetryKeepsCancelWhileParentAlive(t *testing.T) {
	t.Setenv("WALLETSAGA_OTEL_ENDPOINT", "")

	err := RunWithTelemetry(context.Background(), ServiceMaintenance, func(context.Context) error {
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParseConfigReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CMD_TEST_MODE=dotenv-mode\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("CMD_TEST_ADDRESS", "env:9000")
	t.Setenv("CMD_TEST_MODE", "")
	os.Unsetenv("CMD_TEST_MODE")

	cfgRef := testConfig{}
	if err := ParseConfig(&cfgRef); err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfgRef.Mode != "dotenv-mode" {
		t.Fatalf("mode = %q, want %q", cfgRef.Mode, "dotenv-mode")
	}
	if cfgRef.Address != "env:9000" {
		t.Fatalf("address = %q, want %q", cfgRef.Address, "env:9000")
	}
}

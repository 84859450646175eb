// Package cmd holds the startup plumbing shared by walletsaga binaries.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/walletsaga/internal/platform/config"
	"github.com/louisbranch/walletsaga/internal/platform/otel"
	"github.com/louisbranch/walletsaga/internal/platform/timeouts"
	gootel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// Service names double as the OpenTelemetry service.name resource attribute.
const (
	ServiceLedger      = "ledger"
	ServiceMaintenance = "maintenance"
)

// ParseConfig loads environment defaults into cfg, reading a local .env file
// first when one exists.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags over env-derived defaults.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry sets up tracing for service and executes run inside a root
// span. A run that stops with context.Canceled after ctx is done counts as a
// clean shutdown.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("%s telemetry: %w", service, err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("%s otel shutdown: %v", service, err)
		}
	}()

	ctx, span := gootel.Tracer("walletsaga/cmd").Start(ctx, service+".run")
	defer span.End()

	err = run(ctx)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

package grpc

import (
	"context"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthCallTimeout = time.Second
	healthMaxBackoff  = time.Second
)

// WaitForHealth blocks until the health check for service reports SERVING or
// the context ends. An empty service checks the server as a whole.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		status, err := checkOnce(ctx, healthClient, service)
		if err == nil && status == grpc_health_v1.HealthCheckResponse_SERVING {
			if logf != nil {
				logf("gRPC health %q is SERVING", service)
			}
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("waiting for gRPC health %q: %v", service, err)
			} else {
				logf("waiting for gRPC health %q: status %s", service, status.String())
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health %q: %w", service, ctx.Err())
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, healthMaxBackoff)
	}
}

// ServiceStatus is the health of one named service on a server.
type ServiceStatus struct {
	Service string
	Status  grpc_health_v1.HealthCheckResponse_ServingStatus
	Err     error
}

// Serving reports whether the service answered SERVING.
func (s ServiceStatus) Serving() bool {
	return s.Err == nil && s.Status == grpc_health_v1.HealthCheckResponse_SERVING
}

// ProbeServices checks each named service once and returns their statuses in
// the order given.
func ProbeServices(ctx context.Context, conn *gogrpc.ClientConn, services ...string) ([]ServiceStatus, error) {
	if conn == nil {
		return nil, fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	healthClient := grpc_health_v1.NewHealthClient(conn)
	results := make([]ServiceStatus, 0, len(services))
	for _, service := range services {
		status, err := checkOnce(ctx, healthClient, service)
		results = append(results, ServiceStatus{Service: service, Status: status, Err: err})
	}
	return results, nil
}

func checkOnce(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, healthCallTimeout)
	defer cancel()
	response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return response.GetStatus(), nil
}

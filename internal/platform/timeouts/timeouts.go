// Package timeouts holds the fixed deadlines shared by walletsaga processes.
package timeouts

import "time"

const (
	// GRPCDial caps dialing a gRPC peer and waiting for it to report healthy.
	GRPCDial = 2 * time.Second
	// DependencyPing caps the startup reachability check for external stores
	// such as Redis.
	DependencyPing = 2 * time.Second
	// ReadHeader limits how long the HTTP API waits for request headers.
	ReadHeader = 5 * time.Second
	// Shutdown limits how long servers, loops and telemetry exporters drain
	// during graceful shutdown.
	Shutdown = 5 * time.Second
)

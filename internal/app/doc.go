// Package app provides application initialization and lifecycle
// management for the license server. It wires configuration, logging,
// observability, the store, the domain services, and the HTTP surface
// together at startup and handles graceful shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from environment and files
//	2. Initialize logging and OpenTelemetry
//	3. Connect the Redis store
//	4. Create issuer, validator, and limiter
//	5. Set up HTTP handlers and middleware
//	6. Configure and start the HTTP server
//
// # Graceful Shutdown
//
// The package handles SIGINT and SIGTERM to ensure active requests are
// completed, in-flight side effects are flushed, the store connection is
// closed, and telemetry providers are shut down.
//
// All initialization errors are returned to the caller; the package
// never calls os.Exit() itself.
package app

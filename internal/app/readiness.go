// Package app wires application components and startup helpers.
//
// It provides dependency injection and application initialization.
// The package coordinates between different layers and provides
// a clean application bootstrap process.
package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueHealth is the minimal interface a queue backend exposes for
// readiness checks.
type QueueHealth interface {
	IsHealthy() bool
}

// BuildReadinessChecks returns two readiness checks: db and queue. This
// service has no vector store or document-extraction dependency, only a
// database and a queue backend.
func BuildReadinessChecks(pool Pinger, queue QueueHealth) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	queueCheck := func(ctx context.Context) error {
		if queue == nil {
			return fmt.Errorf("queue not configured")
		}
		if !queue.IsHealthy() {
			return fmt.Errorf("queue unhealthy")
		}
		return nil
	}
	return dbCheck, queueCheck
}

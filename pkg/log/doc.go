/*
Package log provides structured logging for Conflux using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("statemachine")            │          │
	│  │  - WithNodeID("1")                          │          │
	│  │  - WithConfigID(42)                         │          │
	│  │  - WithNamespace("acme","checkout","prod")  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "statemachine",             │          │
	│  │    "config_id": 42,                         │          │
	│  │    "time": "2026-07-31T10:30:00Z",         │          │
	│  │    "message": "config released"            │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF config released component=statemachine │  │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Conflux packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithNodeID: Add raft node id context
  - WithConfigID: Add config id context
  - WithNamespace: Add tenant/app/env context

# Usage

Initializing the Logger:

	import "github.com/conflux/conflux/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("cluster bootstrapped")
	log.Debug("checking leadership")
	log.Warn("heartbeat missed")
	log.Error("failed to apply command")
	log.Fatal("cannot start without raft storage") // exits process

Component Loggers:

	smLog := log.WithComponent("statemachine")
	smLog.Info().Uint64("config_id", cfg.ID).Msg("config created")

Context Logger Helpers:

	nodeLog := log.WithNodeID(strconv.FormatUint(nodeID, 10))
	nodeLog.Info().Msg("node joined cluster")

	cfgLog := log.WithConfigID(cfg.ID)
	cfgLog.Info().Msg("release rules updated")

# Integration Points

This package integrates with:

  - cmd/confluxd: Logs CLI operation outcomes

No other package in this module imports it; pkg/statemachine, pkg/raftnode
and pkg/limiter report through return values and pkg/metrics instead.

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Avoids repetitive field specification

# Security

Log Content:
  - Never log config version content or credentials
  - Config IDs, namespaces, and node IDs are safe to log; payload bytes are not
*/
package log

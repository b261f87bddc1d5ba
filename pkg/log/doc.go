/*
Package log provides structured logging for sokovan using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

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
	│  │  - WithComponent("queue")                   │          │
	│  │  - WithAgentID("agent-abc123")               │          │
	│  │  - WithSessionID("session-xyz")             │          │
	│  │  - WithKernelID("kernel-def456")             │          │
	│  │  - WithScalingGroup("default")               │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "queue",                    │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "session scheduled"           │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2024-10-13T10:30:00Z INF session scheduled component=queue │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all sokovan packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: detailed debugging information
  - Info: general informational messages
  - Warn: warning messages (potential issues)
  - Error: error messages (operation failed)
  - Fatal: critical errors (process exits)

Configuration:
  - Level: filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: add a component name to all logs
  - WithAgentID: add agent ID context
  - WithSessionID: add session ID context
  - WithKernelID: add kernel ID context
  - WithScalingGroup: add scaling group context

# Usage

Initializing the Logger:

	import "github.com/cuemby/sokovan/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/sokovan.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("scheduling core started")
	log.Debug("polling agent health")
	log.Warn("agent heartbeat missed")
	log.Error("failed to dial agent")
	log.Fatal("cannot start without raft bootstrap") // exits process

Component Loggers:

	queueLog := log.WithComponent("queue")
	queueLog.Info().Msg("running scheduling tick")
	queueLog.Debug().Str("scaling_group", "default").Msg("picked session")

	kernelLog := log.WithComponent("lifecycle").
		With().Str("agent_id", "agent-abc").
		Str("kernel_id", "kernel-123").Logger()
	kernelLog.Info().Msg("kernel created")
	kernelLog.Error().Err(err).Msg("kernel create failed")

Context Logger Helpers:

	agentLog := log.WithAgentID("agent-abc123")
	agentLog.Info().Msg("agent registered")

	sessionLog := log.WithSessionID("session-xyz789")
	sessionLog.Info().Msg("session status changed")

	kernelLog := log.WithKernelID("kernel-def456")
	kernelLog.Info().Msg("kernel started")

Complete Example:

	package main

	import (
		"errors"
		"os"

		"github.com/cuemby/sokovan/pkg/log"
	)

	func main() {
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("sokovand starting")

		queueLog := log.WithComponent("queue")
		queueLog.Info().
			Str("scaling_group", "default").
			Int("pending_count", 5).
			Msg("running scheduling tick")

		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "agentrpc").
			Msg("failed to dial agent")

		log.Info("sokovand stopped")
	}

# Integration Points

This package integrates with:

  - pkg/manager: logs cluster operations and Raft events
  - pkg/queue: logs scheduling tick decisions
  - pkg/lifecycle: logs SCHEDULED fan-out, termination, and sweeping
  - pkg/health: logs agent health-check transitions
  - pkg/agentrpc: logs RPC dial/call failures toward agents

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"manager","time":"2024-10-13T10:30:00Z","message":"cluster bootstrapped"}
	{"level":"info","component":"queue","session_id":"s-123","time":"2024-10-13T10:30:01Z","message":"session scheduled"}
	{"level":"error","component":"lifecycle","agent_id":"agent-abc","error":"image not found","time":"2024-10-13T10:30:02Z","message":"kernel create failed"}

Console Format (Development):

	2024-10-13T10:30:00Z INF cluster bootstrapped component=manager
	2024-10-13T10:30:01Z INF session scheduled component=queue session_id=s-123
	2024-10-13T10:30:02Z ERR kernel create failed component=lifecycle agent_id=agent-abc error="image not found"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across codebase

# Troubleshooting

No Log Output:
  - Check: log.Init() called before logging
  - Check: log level set appropriately (Debug < Info < Warn < Error)

Missing Context Fields:
  - Cause: using the global Logger instead of a context logger
  - Solution: use WithComponent() or one of the With*ID helpers

Log Parsing Fails:
  - Cause: embedded quotes or control characters from string
    interpolation into the message
  - Solution: use .Str() fields instead of building the message string

# Log Rotation

sokovan doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):

	# /etc/logrotate.d/sokovan
	/var/log/sokovan/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:

	journalctl -u sokovan -f

Docker/Kubernetes:
  - use the container runtime's log driver; JSON logs already go to
    stdout

# Security

Log Content:
  - Never log secrets, access keys, or join tokens
  - Use structured fields, not string concatenation, for any value
    that originates from user input

# Best Practices

Do:
  - Use Info level in production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log sensitive data (join tokens, cert private keys)
  - Use Debug level in production
  - Concatenate strings into the message (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log

// Package log provides the logging interface for the wdeploy SDK.
//
// The SDK accepts any implementation of [Logger]. Use [Noop] to disable
// logging (this is the default when no logger is configured).
package log

import "github.com/slok/wdeploy/internal/log"

// Logger is the interface that loggers must implement for the SDK.
type Logger = log.Logger

// Kv is a helper type for structured logging key-value pairs.
type Kv = log.Kv

// Noop is a logger that discards all log output.
var Noop = log.Noop

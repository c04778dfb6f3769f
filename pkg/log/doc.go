// Package log provides structured logging for pcectl built on zerolog.
//
// The package exposes a global logger configured once at process start
// plus helpers for creating child loggers scoped to a component or a
// target cluster.
package log

// Package log provides the fleet's structured logging: a zerolog-backed
// global logger configured once at startup (level, JSON vs. console output)
// via Init, plus per-component loggers (WithComponent, WithNodeID) so every
// log line carries the subsystem and node it came from without callers
// threading a logger value through every function signature.
package log

// Package logx is remindbot's structured logger.
//
// It wraps zerolog so that:
//   - console output stays readable (short timestamp + file:line caller)
//   - the optional log file is JSON lines
//   - warnings can be mirrored to an admin Telegram chat (min-level + rate limited)
package logx

// Package logx configures pillbot's structured logging.
//
// A small value-type wrapper (logx.Logger) sits on top of zerolog:
//   - console output stays readable (short timestamp, short caller)
//   - file output is JSON and rotated by lumberjack
//   - an optional chat sink forwards warnings and errors, rate limited
package logx

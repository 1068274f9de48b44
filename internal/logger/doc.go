// Package logger wraps zap with:
//   - a global sugared logger writing console lines to standard error,
//   - context helpers (ToContext, FromContext, WithName, WithKV),
//   - level parsing and configuration.
//
// Code that receives a context logs through it, so that the command layer
// decides names and fields once for a whole build.
package logger

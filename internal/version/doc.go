// Package version exposes build metadata injected with -ldflags.
package version

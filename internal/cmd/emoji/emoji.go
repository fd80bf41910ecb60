// Package emoji provides symbol constants for CLI output.
package emoji

// Symbols shared by every command.
const (
	// Success marks completed operations and 2xx/3xx responses.
	Success = "✓"

	// Error marks failures and 4xx/5xx responses.
	Error = "✗"

	// Stop marks shutdown.
	Stop = "■"

	// Warning marks non-fatal problems such as the default secret.
	Warning = "!"

	// Info marks informational notices.
	Info = "i"

	// Connected marks a live stream.
	Connected = "●"

	// Disconnected marks a stream that is reconnecting.
	Disconnected = "○"

	// Rocket marks the server starting.
	Rocket = "🚀"
)

package common

// Build-time variables (set via -ldflags).
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

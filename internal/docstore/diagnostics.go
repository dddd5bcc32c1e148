package docstore

import (
	"github.com/dockv/dockv/pkg/logger"
)

// Reporter receives structured failure context for operations the repository
// could not complete. Implementations must be fire-and-forget: never block
// for long, never panic.
type Reporter interface {
	Report(key, operation, message string, detail error)
}

// LogReporter is the default sink; it writes through pkg/logger.
type LogReporter struct{}

func (LogReporter) Report(key, operation, message string, detail error) {
	logger.Errorf("docstore %s key=%q: %s: %v", operation, key, message, detail)
}

// ReporterFunc adapts a plain function to the Reporter interface.
type ReporterFunc func(key, operation, message string, detail error)

func (f ReporterFunc) Report(key, operation, message string, detail error) {
	f(key, operation, message, detail)
}

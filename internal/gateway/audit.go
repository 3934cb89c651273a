package gateway

import (
	"context"

	"github.com/shieldgate/gateway/internal/metrics"
	"github.com/shieldgate/gateway/pkg/domain/audit"
	"github.com/shieldgate/gateway/pkg/logger"
)

// Sink writes security events as a non-blocking side channel. A failed
// write is reported to the local logger and counted, and is otherwise
// invisible: audit durability must never become an availability dependency
// for the gateway itself.
type Sink struct {
	repo   audit.Repository
	logger *logger.Logger
}

// NewSink creates an audit sink over the given repository.
func NewSink(repo audit.Repository, log *logger.Logger) *Sink {
	return &Sink{
		repo:   repo,
		logger: log.With("component", "audit_sink"),
	}
}

// Emit appends an event, swallowing any failure.
func (s *Sink) Emit(ctx context.Context, e *audit.Event) {
	if e == nil {
		return
	}
	if err := s.repo.Append(ctx, e); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		s.logger.Error("audit write failed",
			"error", err,
			"type", string(e.Type),
			"message", e.Message,
			"ip", e.IP,
		)
	}
}

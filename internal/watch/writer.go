package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/analysis"
	"github.com/linnemanlabs/sentinel/internal/correlation"
)

// Writer applies analysis results to stored events.
type Writer struct {
	store  Store
	logger log.Logger
	now    func() time.Time
}

// NewWriter creates a Writer over store.
func NewWriter(store Store, logger log.Logger) *Writer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Writer{store: store, logger: logger, now: time.Now}
}

// Apply writes res onto the event in one update with processedAt set to now.
// Applying the same result twice leaves the record as the first write left it.
// Errors are logged here with the correlation id; the caller only records the
// task outcome.
func (w *Writer) Apply(ctx context.Context, eventID string, res *analysis.Result) error {
	if res == nil {
		return errors.New("nil analysis result")
	}
	if !res.Severity.Valid() {
		return fmt.Errorf("severity %q out of domain", res.Severity)
	}

	if err := w.store.ApplyAnalysis(ctx, eventID, res, w.now().UTC()); err != nil {
		msg := "failed to persist analysis result"
		if errors.Is(err, ErrNotFound) {
			msg = "event deleted before analysis could be stored"
		}
		w.logger.Error(ctx, err, msg,
			"event_id", eventID,
			"correlation_id", correlation.FromContext(ctx),
		)
		return fmt.Errorf("apply analysis to event %s: %w", eventID, err)
	}
	return nil
}

package notification

import (
	"context"

	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"

	"github.com/rs/zerolog"
)

// LogNotifier writes events to the log and nothing else. It stands in for a
// real consumer when no webhook URL is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Send logs the event.
func (n *LogNotifier) Send(_ context.Context, event ports.Event) error {
	n.log.Info().
		Str("kind", event.Kind).
		Str("operation_id", event.OperationID).
		Ints64("account_ids", event.AccountIDs).
		Str("amount", event.Amount.String()).
		Msg("ledger event")
	return nil
}

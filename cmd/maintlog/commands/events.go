package commands

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/maintlog/maintlog/pkg/telemetry"
)

// logEvents writes every lifecycle event to logger at debug level so -v
// shows what a command changed.
func logEvents(logger zerolog.Logger) telemetry.EventSubscriber {
	return func(e telemetry.Event) {
		logger.Debug().
			Str("event", e.Type).
			Str("source", e.Source).
			Str("project", e.Project).
			Str("record_id", e.RecordID).
			Str("level", e.Level).
			Msg(e.Message)
	}
}

// printExternalChange prints one store.external_change event.
func printExternalChange(e telemetry.Event) {
	if jsonOutput {
		_ = printJSON(e)
		return
	}
	size, _ := e.Data["size"].(int64)
	modTime, _ := e.Data["mod_time"].(time.Time)
	printWarning("%v changed externally (%v, %d bytes at %s)",
		e.Data["path"], e.Data["op"], size, modTime.Local().Format("15:04:05"))
}

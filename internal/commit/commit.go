// Package commit implements the Commit Coordinator: it invokes an
// envelope's commit handle exactly once, after either pipeline success or
// DLQ success, and never re-raises a commit failure (spec §4.H).
package commit

import (
	"github.com/bne-group/eportal-gateway/internal/envelope"
	"github.com/bne-group/eportal-gateway/internal/gwlog"
)

// Fire invokes e's commit handle exactly once. A missing handle is logged at
// warn and skipped; a commit failure is logged and swallowed — at-least-once
// relies on redelivery, not on the coordinator retrying itself.
func Fire(e *envelope.Envelope) {
	if e.Commit == nil {
		gwlog.L().Warnw("commit skipped: envelope has no commit handle",
			"sourceTopic", e.SourceTopic, "partition", e.Partition, "offset", e.Offset)
		return
	}
	if err := e.Commit(); err != nil {
		gwlog.L().Errorw("commit failed, relying on redelivery",
			"sourceTopic", e.SourceTopic, "partition", e.Partition, "offset", e.Offset, "error", err)
	}
}

package commit

import (
	"errors"
	"testing"

	"github.com/bne-group/eportal-gateway/internal/envelope"
)

func TestFireInvokesCommitHandleExactlyOnce(t *testing.T) {
	calls := 0
	e := &envelope.Envelope{
		Commit: func() error {
			calls++
			return nil
		},
	}

	Fire(e)

	if calls != 1 {
		t.Fatalf("expected commit handle invoked exactly once, got %d", calls)
	}
}

func TestFireSwallowsCommitError(t *testing.T) {
	e := &envelope.Envelope{
		Commit: func() error { return errors.New("broker unavailable") },
	}

	// Must not panic and must return normally; at-least-once relies on
	// redelivery, not on the coordinator retrying itself.
	Fire(e)
}

func TestFireSkipsNilCommitHandle(t *testing.T) {
	e := &envelope.Envelope{Commit: nil}

	Fire(e)
}

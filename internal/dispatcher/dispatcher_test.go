package dispatcher

import (
	"testing"

	"github.com/bne-group/eportal-gateway/internal/envelope"
)

func TestAcceptRequiresNonBlankMessageSchemaHeader(t *testing.T) {
	cases := []struct {
		name string
		h    envelope.Headers
		want bool
	}{
		{"present and non-blank", envelope.Headers{"messageSchema": "RequestPayerCustomerOwnAccountRetrieve"}, true},
		{"absent", envelope.Headers{}, false},
		{"blank", envelope.Headers{"messageSchema": ""}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := accept(c.h); got != c.want {
				t.Fatalf("accept(%+v) = %v, want %v", c.h, got, c.want)
			}
		})
	}
}

func TestNewPoolUsesBoundedQueueCapacity(t *testing.T) {
	p := NewPool("request", nil, nil)
	if cap(p.queue) != QueueCapacity {
		t.Fatalf("expected queue capacity %d, got %d", QueueCapacity, cap(p.queue))
	}
}

package worker

import (
	"context"

	"github.com/rs/zerolog"
)

// ProcessMessage runs a raw message through a handler with no Pub/Sub
// client and reports whether it would be acked.
func ProcessMessage(ctx context.Context, job *WarmJob, data []byte) bool {
	h := &PubSubHandler{job: job, logger: zerolog.Nop()}
	return h.process(ctx, "test", data)
}

package eventbus

import (
	"context"
	"time"

	"chorus-server-go/internal/platform/logging"
)

// Recorder persists job events; the storage layer implements it.
type Recorder interface {
	RecordJobEvent(ctx context.Context, event JobEvent) error
}

// AttachLogSink mirrors every training transition into the server log.
func AttachLogSink(b *Bus, logger *logging.Logger) error {
	return b.SubscribeAll(func(topic string, event JobEvent) {
		switch topic {
		case TopicJobFailed:
			logger.WarnTag("Events", "job %s failed (attempt %d): %s", event.JobID, event.Attempt, event.Error)
		case TopicJobProgress:
			logger.DebugTag("Events", "job %s %s %.0f%%", event.JobID, event.Stage, event.Progress)
		default:
			logger.InfoTag("Events", "job %s %s", event.JobID, event.Status)
		}
	})
}

// AttachPersistSink stores every training transition through the recorder,
// giving the job detail endpoint its event history. Store failures are logged
// and dropped; persistence never blocks the pipeline.
func AttachPersistSink(b *Bus, rec Recorder, logger *logging.Logger) error {
	return b.SubscribeAll(func(topic string, event JobEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.RecordJobEvent(ctx, event); err != nil {
			logger.WarnTag("Events", "persist %s for job %s failed: %v", topic, event.JobID, err)
		}
	})
}

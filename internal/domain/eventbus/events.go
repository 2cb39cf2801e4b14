package eventbus

import "time"

// Training lifecycle topics. Publishing one topic per transition lets
// subscribers pick the slice of the lifecycle they care about.
const (
	TopicJobQueued    = "training:queued"
	TopicJobStarted   = "training:started"
	TopicJobProgress  = "training:progress"
	TopicJobCompleted = "training:completed"
	TopicJobFailed    = "training:failed"
	TopicJobCancelled = "training:cancelled"
)

// JobEvent is the payload carried on every training topic.
type JobEvent struct {
	JobID        string    `json:"job_id"`
	OwnerID      string    `json:"owner_id"`
	ModelName    string    `json:"model_name,omitempty"`
	VoiceModelID string    `json:"voice_model_id,omitempty"`
	Status       string    `json:"status"`
	Stage        string    `json:"stage,omitempty"`
	Progress     float64   `json:"progress"`
	Attempt      int       `json:"attempt,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Topics lists every training topic, for subscribers that mirror the whole
// lifecycle.
func Topics() []string {
	return []string{
		TopicJobQueued,
		TopicJobStarted,
		TopicJobProgress,
		TopicJobCompleted,
		TopicJobFailed,
		TopicJobCancelled,
	}
}

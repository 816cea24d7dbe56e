package worker

// JobEvent is the queue message carrying a reference to a pending job.
// The job record itself is the source of truth; the event only says
// "something to do under this id".
type JobEvent struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

package config

const (
	// TopicIngestJob is the NSQ topic carrying references to pending
	// ingestion jobs. Workers consume it on ChannelWorkers.
	TopicIngestJob = "ingest.job"

	// ChannelWorkers is the shared consumer channel; NSQ delivers each job
	// reference to exactly one worker on the channel.
	ChannelWorkers = "workers"
)

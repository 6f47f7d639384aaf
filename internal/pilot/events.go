package pilot

// Event topics published by the Pilot module.
const (
	// TopicUsageRecorded fires after every completed LLM call, successful
	// or not, carrying the usage record for billing and dashboards.
	TopicUsageRecorded = "pilot.usage.recorded"

	// TopicInputSuspicious fires when the sanitizer flags user input that
	// matches a prompt injection pattern.
	TopicInputSuspicious = "pilot.input.suspicious"
)

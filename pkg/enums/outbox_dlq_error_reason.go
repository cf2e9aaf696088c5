package enums

// OutboxDLQErrorReason records why the publisher gave up on an outbox event.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means retryable failures exhausted the attempt budget.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable covers undecodable payloads and permanent broker rejections.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}

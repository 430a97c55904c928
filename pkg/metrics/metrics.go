package metrics

import "time"

// TransferMetrics records batches sent to the backend by the processor,
// the foreground transferrer and the export job.
type TransferMetrics interface {
	// RecordResult counts one per-file result.
	RecordResult(command, outcome string)

	// ObserveBatch records one backend call covering files items.
	ObserveBatch(command string, files int, duration time.Duration)

	// RecordHalt counts a command group that halted.
	RecordHalt(command string)
}

// QueueMetrics tracks the transfer queue.
type QueueMetrics interface {
	// SetDepth sets the number of queued entries for command.
	SetDepth(command string, n int)
}

// BackendMetrics records engine calls.
type BackendMetrics interface {
	// ObserveOperation records one engine operation ("upload", "delete",
	// "test") and how many of its items did not succeed.
	ObserveOperation(engine, op string, duration time.Duration, failed int)
}

// RewriteMetrics records rendering.
type RewriteMetrics interface {
	// ObserveRender records one rewrite pass and its replaced URL count.
	ObserveRender(duration time.Duration, rewritten int)

	// RecordRejected counts responses the policy left untouched.
	RecordRejected(reason string)
}

// RecordResult records a result if m is non-nil.
func RecordResult(m TransferMetrics, command, outcome string) {
	if m != nil {
		m.RecordResult(command, outcome)
	}
}

// ObserveBatch records a batch if m is non-nil.
func ObserveBatch(m TransferMetrics, command string, files int, duration time.Duration) {
	if m != nil {
		m.ObserveBatch(command, files, duration)
	}
}

// RecordHalt records a halted group if m is non-nil.
func RecordHalt(m TransferMetrics, command string) {
	if m != nil {
		m.RecordHalt(command)
	}
}

// SetDepth records a queue depth if m is non-nil.
func SetDepth(m QueueMetrics, command string, n int) {
	if m != nil {
		m.SetDepth(command, n)
	}
}

// ObserveOperation records an engine call if m is non-nil.
func ObserveOperation(m BackendMetrics, engine, op string, duration time.Duration, failed int) {
	if m != nil {
		m.ObserveOperation(engine, op, duration, failed)
	}
}

// ObserveRender records a rewrite pass if m is non-nil.
func ObserveRender(m RewriteMetrics, duration time.Duration, rewritten int) {
	if m != nil {
		m.ObserveRender(duration, rewritten)
	}
}

// RecordRejected records a policy rejection if m is non-nil.
func RecordRejected(m RewriteMetrics, reason string) {
	if m != nil {
		m.RecordRejected(reason)
	}
}

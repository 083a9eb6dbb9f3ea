package tool

// ExecuteObservation captures one ExecuteTool outcome as seen by the caller.
type ExecuteObservation struct {
	Server     string
	Tool       string
	Protocol   ProtocolType
	Polls      int
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// PollObservation captures one result poll.
type PollObservation struct {
	Server   string
	Tool     string
	JobID    string
	Attempt  int
	Status   JobStatus
	ErrorMsg string
}

// DiscoveryObservation captures one discovery round for a server.
type DiscoveryObservation struct {
	Server     string
	Protocol   ProtocolType
	Tools      int
	Fallback   bool
	DurationMS int64
	Success    bool
	ErrorCode  string
}

// HealthObservation captures one health probe.
type HealthObservation struct {
	Server     string
	Protocol   ProtocolType
	Healthy    bool
	DurationMS int64
}

// RetryObservation captures one retried idempotent request.
type RetryObservation struct {
	Server    string
	Operation string
	Protocol  ProtocolType
	Attempt   int
	ErrorCode string
}

// Observer receives dispatch observability events. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveExecute(ExecuteObservation)
	ObservePoll(PollObservation)
	ObserveDiscovery(DiscoveryObservation)
	ObserveHealth(HealthObservation)
	ObserveRetry(RetryObservation)
}

// NoopObserver discards every observation.
type NoopObserver struct{}

func (NoopObserver) ObserveExecute(ExecuteObservation)     {}
func (NoopObserver) ObservePoll(PollObservation)           {}
func (NoopObserver) ObserveDiscovery(DiscoveryObservation) {}
func (NoopObserver) ObserveHealth(HealthObservation)       {}
func (NoopObserver) ObserveRetry(RetryObservation)         {}

// MultiObserver fans observations out to several observers.
type MultiObserver []Observer

func (m MultiObserver) ObserveExecute(o ExecuteObservation) {
	for _, observer := range m {
		observer.ObserveExecute(o)
	}
}

func (m MultiObserver) ObservePoll(o PollObservation) {
	for _, observer := range m {
		observer.ObservePoll(o)
	}
}

func (m MultiObserver) ObserveDiscovery(o DiscoveryObservation) {
	for _, observer := range m {
		observer.ObserveDiscovery(o)
	}
}

func (m MultiObserver) ObserveHealth(o HealthObservation) {
	for _, observer := range m {
		observer.ObserveHealth(o)
	}
}

func (m MultiObserver) ObserveRetry(o RetryObservation) {
	for _, observer := range m {
		observer.ObserveRetry(o)
	}
}

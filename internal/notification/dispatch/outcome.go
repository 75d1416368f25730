// internal/notification/dispatch/outcome.go
package dispatch

// State is the terminal state of one channel's dispatch attempt.
type State string

const (
	// StateDispatched means the rendered message was handed to the transport
	// provider. Anything downstream of that hand-off is the provider's
	// problem.
	StateDispatched State = "dispatched"
	// StateSkipped means the channel was intentionally not attempted.
	StateSkipped State = "skipped"
	// StateFailed means the attempt errored before or at the hand-off.
	StateFailed State = "failed"
)

// Reason qualifies Skipped and Failed states.
type Reason string

const (
	ReasonPreference      Reason = "preference"
	ReasonCanceled        Reason = "canceled"
	ReasonMissingTemplate Reason = "missing_template"
	ReasonMissingVariable Reason = "missing_variable"
	ReasonRender          Reason = "render"
	ReasonTransport       Reason = "transport"
)

// Outcome is the per-channel result returned from Submit. ProviderMessageID
// is set only for dispatched outcomes whose transport reports one.
type Outcome struct {
	State             State  `json:"state"`
	Reason            Reason `json:"reason,omitempty"`
	Detail            string `json:"detail,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

func skipped(reason Reason, detail string) Outcome {
	return Outcome{State: StateSkipped, Reason: reason, Detail: detail}
}

func failed(reason Reason, detail string) Outcome {
	return Outcome{State: StateFailed, Reason: reason, Detail: detail}
}

func dispatched(providerMessageID string) Outcome {
	return Outcome{State: StateDispatched, ProviderMessageID: providerMessageID}
}

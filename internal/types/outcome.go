package types

// Outcome is the classified result of one metadata or SQL item
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeIdempotent Outcome = "idempotent"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
)

// Succeeded reports whether the item left the target in the desired state
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeIdempotent
}

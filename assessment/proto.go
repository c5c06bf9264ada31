package assessment

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/onet/v3"

	"github.com/riskco/riskco/oracle"
)

// PROTOSTART
// package assessment;
// type :oracle.RequestID:string
// import "oracle.proto";
//
// option java_package = "com.github.riskco.lib.proto";
// option java_outer_classname = "AssessmentProto";

// Measurement is one institution's submission: three ciphertext handles
// under the bound oracle's scheme key, plus the submission time. The
// handles are opaque to this service; only the oracle can open them.
type Measurement struct {
	// ID is assigned by the service, strictly increasing from 1. 0 is
	// never a valid ID.
	ID uint64
	// BreachAttempts encrypts the number of detected breach attempts.
	BreachAttempts []byte
	// ResponseTimeMinutes encrypts the mean incident response time.
	ResponseTimeMinutes []byte
	// VulnerabilityCount encrypts the number of open vulnerabilities.
	VulnerabilityCount []byte
	// SubmittedAt is the unix nano timestamp of the submission. It never
	// changes afterwards.
	SubmittedAt int64
}

// Assessment is the derived verdict for one measurement. All derived
// fields stay at their zero value until the decryption callback finalizes
// the assessment, and are never written again after that.
type Assessment struct {
	RiskLevel        RiskLevel
	Recommendations  string
	SystemicRiskFlag SystemicFlag
	// IsRevealed latches to true exactly once.
	IsRevealed bool
	// RevealedAt is the unix nano timestamp of the finalization, 0 while
	// unrevealed.
	RevealedAt int64
}

// RevealTarget says what a decryption callback is for. Exactly one of the
// two fields is set.
type RevealTarget struct {
	Institution *InstitutionTarget
	Category    *CategoryTarget
}

// InstitutionTarget asks to finalize the assessment of one measurement.
type InstitutionTarget struct {
	ID uint64
}

// CategoryTarget asks to reveal the current value of one aggregate
// counter, named by its registry digest.
type CategoryTarget struct {
	Key []byte
}

// Counter is one aggregate risk counter. Count is a ciphertext handle
// holding how many assessments finalized at this risk level.
type Counter struct {
	Count []byte
	// Initialized is set when the first increment creates the counter.
	Initialized bool
	// Generation counts the increments applied so far. Reveal requests
	// remember it so that a slow callback cannot overwrite the snapshot of
	// a fresher one.
	Generation uint64
}

// RevealedCount is the stored plaintext snapshot of one counter, kept for
// auditing. Only the snapshot with the highest generation survives.
type RevealedCount struct {
	Category   RiskLevel
	Count      uint32
	Generation uint64
	RevealedAt int64
}

// Submit stores a new encrypted measurement. All three handles are
// required.
type Submit struct {
	BreachAttempts      []byte
	ResponseTimeMinutes []byte
	VulnerabilityCount  []byte
}

// SubmitReply returns the ID under which the measurement was stored.
type SubmitReply struct {
	ID uint64
}

// GetMeasurement fetches one stored measurement by ID.
type GetMeasurement struct {
	ID uint64
}

// GetMeasurementReply is the answer to GetMeasurement.
type GetMeasurementReply struct {
	Measurement Measurement
}

// GetAssessment fetches the assessment of one measurement by ID. Before
// the reveal it comes back with all derived fields unset.
type GetAssessment struct {
	ID uint64
}

// GetAssessmentReply is the answer to GetAssessment.
type GetAssessmentReply struct {
	Assessment Assessment
}

// RequestReveal asks the bound oracle to decrypt either one institution's
// measurements or one category counter. The answer arrives later through
// the oracle's callback.
type RequestReveal struct {
	Target RevealTarget
}

// RequestRevealReply returns the oracle's request ID. The same target may
// be requested again; whichever callback arrives first wins.
type RequestRevealReply struct {
	RequestID oracle.RequestID
}

// PeekCount returns the current encrypted state of one counter without
// involving the oracle.
type PeekCount struct {
	Category RiskLevel
}

// PeekCountReply is the answer to PeekCount.
type PeekCountReply struct {
	Count      []byte
	Generation uint64
}

// GetRevealedCount fetches the latest audited counter snapshot of one
// category.
type GetRevealedCount struct {
	Category RiskLevel
}

// GetRevealedCountReply is the answer to GetRevealedCount.
type GetRevealedCountReply struct {
	Revealed RevealedCount
}

// BindOracle points the service at the oracle roster that holds the keys.
// The service fetches and pins the oracle's public material; reveal
// requests fail until a binding exists.
type BindOracle struct {
	Roster *onet.Roster
	Scheme string
}

// BindOracleReply echoes the pinned public material.
type BindOracleReply struct {
	SchemePublic  []byte
	SigningPublic kyber.Point
}

// GetBinding returns the current oracle binding.
type GetBinding struct {
}

// GetBindingReply is the answer to GetBinding.
type GetBindingReply struct {
	Roster        *onet.Roster
	Scheme        string
	SchemePublic  []byte
	SigningPublic kyber.Point
}

// StreamEvents subscribes to the service's event feed. Every state change
// is pushed to the subscriber until the connection closes.
type StreamEvents struct {
}

// StreamEventsResponse carries one event to a subscriber.
type StreamEventsResponse struct {
	Event Event
}

// Event is one entry of the service's event feed. Exactly one of the
// pointer fields is set.
type Event struct {
	// When is the unix nano timestamp of the state change.
	When            int64
	Submitted       *EventSubmitted
	RevealRequested *EventRevealRequested
	Finalized       *EventFinalized
	CountRevealed   *EventCountRevealed
}

// EventSubmitted reports a new measurement.
type EventSubmitted struct {
	ID uint64
}

// EventRevealRequested reports a decryption request sent to the oracle.
type EventRevealRequested struct {
	RequestID oracle.RequestID
	Target    RevealTarget
}

// EventFinalized reports a finalized assessment.
type EventFinalized struct {
	ID        uint64
	RiskLevel RiskLevel
}

// EventCountRevealed reports a counter snapshot delivered by the oracle.
type EventCountRevealed struct {
	Category   RiskLevel
	Count      uint32
	Generation uint64
}

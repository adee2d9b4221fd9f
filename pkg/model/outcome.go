package model

// Reason is a stable reason code surfaced to API clients when an
// eligibility check fails.
type Reason string

const (
	ReasonVersioningOnlyByOwner      Reason = "versioning_only_by_owner"
	ReasonNonVersionedArtifactType   Reason = "non_versioned_artifact_type"
	ReasonPublishOnlyDraft           Reason = "publish_only_draft"
	ReasonCreateDraftOnlyFromPublished Reason = "create_draft_only_from_published"
	ReasonVersioningOnlyOnLatest     Reason = "versioning_only_on_latest"
)

// OutcomeWithReason is the result of an eligibility predicate: either
// positive, or negative with a stable reason code.
type OutcomeWithReason struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Positive returns an allowing outcome.
func Positive() OutcomeWithReason {
	return OutcomeWithReason{Allowed: true}
}

// Negative returns a denying outcome carrying the given reason.
func Negative(reason Reason) OutcomeWithReason {
	return OutcomeWithReason{Allowed: false, Reason: reason}
}

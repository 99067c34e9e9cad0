package confidence

import (
	"strings"
	"time"
)

// ResolveReason explains why a flag resolved to its value.
type ResolveReason string

const (
	ReasonMatch   ResolveReason = "MATCH"
	ReasonNoMatch ResolveReason = "NO_MATCH"
	ReasonDefault ResolveReason = "DEFAULT"
	ReasonError   ResolveReason = "ERROR"
	// ReasonArchived is returned by the backend for flags that still resolve
	// but have been archived.
	ReasonArchived ResolveReason = "ARCHIVED"
)

// ResolvedFlag is a single flag resolution as returned by the backend or the
// local resolver. It is created fresh per resolution and never mutated.
type ResolvedFlag struct {
	Flag        string        `json:"flag"`
	Variant     string        `json:"variant"`
	Value       Value         `json:"value"`
	Reason      ResolveReason `json:"reason"`
	ShouldApply bool          `json:"shouldApply"`
}

// EvaluationResult is the outcome of a typed flag evaluation. Expected
// failure modes never escape as errors; they surface here as IsSuccess=false
// with the caller's default in Value.
type EvaluationResult[T any] struct {
	Value        T
	Reason       ResolveReason
	Variant      string
	IsSuccess    bool
	ErrorMessage string
}

type sdkInfo struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

type resolveRequest struct {
	ClientSecret      string                 `json:"clientSecret"`
	Apply             bool                   `json:"apply"`
	Flags             []string               `json:"flags"`
	EvaluationContext map[string]interface{} `json:"evaluationContext"`
	Sdk               sdkInfo                `json:"sdk"`
}

type resolveResponse struct {
	ResolvedFlags []ResolvedFlag `json:"resolvedFlags"`
	ResolveToken  string         `json:"resolveToken"`
}

type appliedFlagPayload struct {
	Flag      string    `json:"flag"`
	ApplyTime time.Time `json:"applyTime"`
}

type applyRequest struct {
	ClientSecret string               `json:"clientSecret"`
	ResolveToken string               `json:"resolveToken"`
	SendID       string               `json:"sendId"`
	SendTime     time.Time            `json:"sendTime"`
	AppliedFlags []appliedFlagPayload `json:"appliedFlags"`
	Sdk          sdkInfo              `json:"sdk"`
}

type trackRequest struct {
	ClientSecret string                 `json:"clientSecret"`
	EventName    string                 `json:"eventName"`
	Data         map[string]interface{} `json:"data,omitempty"`
	SendTime     time.Time              `json:"sendTime"`
	Sdk          sdkInfo                `json:"sdk"`
}

// flagQualifiedName maps a base flag identifier to its backend-qualified
// name, e.g. "user" -> "flags/user". Already-qualified names pass through.
func flagQualifiedName(base string) string {
	const prefix = "flags/"
	if strings.HasPrefix(base, prefix) {
		return base
	}
	return prefix + base
}

package confidence

// TargetingKeyAttribute is the distinguished context attribute the backend
// uses for randomization and sticky assignment.
const TargetingKeyAttribute = "targeting_key"

// EvaluationContext is contextual data used during flag evaluation.
//
// The zero value is an empty context. A context is immutable once
// constructed and owned by the request it was built for.
type EvaluationContext struct {
	attributes map[string]interface{}
}

// NewEvaluationContext creates an evaluation context for a targeting key.
// The attribute map is copied, so later mutation by the caller has no effect.
func NewEvaluationContext(targetingKey string, attributes map[string]interface{}) (ec EvaluationContext) {
	ec.attributes = make(map[string]interface{}, len(attributes)+1)
	for k, v := range attributes {
		ec.attributes[k] = v
	}
	if targetingKey != "" {
		ec.attributes[TargetingKeyAttribute] = targetingKey
	}
	return ec
}

// NewAnonymousEvaluationContext is equivalent to NewEvaluationContext("", attributes).
func NewAnonymousEvaluationContext(attributes map[string]interface{}) EvaluationContext {
	return NewEvaluationContext("", attributes)
}

// TargetingKey returns the distinguished targeting key attribute, or "" when
// the context is anonymous.
func (ec EvaluationContext) TargetingKey() string {
	if key, ok := ec.attributes[TargetingKeyAttribute].(string); ok {
		return key
	}
	return ""
}

// asMap returns the wire representation of the context. Callers must not
// mutate the returned map; the resolve paths only serialize it.
func (ec EvaluationContext) asMap() map[string]interface{} {
	if ec.attributes == nil {
		return map[string]interface{}{}
	}
	return ec.attributes
}

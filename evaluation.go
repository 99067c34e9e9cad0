package confidence

import (
	"context"
	"time"
)

// EvaluateBoolean resolves flagKey and coerces the addressed value to bool.
// Only a tagged boolean converts; anything else yields the default.
func (c *Client) EvaluateBoolean(ctx context.Context, flagKey string, defaultValue bool, ec EvaluationContext) EvaluationResult[bool] {
	return evaluate(ctx, c, flagKey, defaultValue, ec, coerceBool)
}

// EvaluateString resolves flagKey and coerces the addressed value to string.
// Numbers and booleans serialize via their default string conversion.
func (c *Client) EvaluateString(ctx context.Context, flagKey string, defaultValue string, ec EvaluationContext) EvaluationResult[string] {
	return evaluate(ctx, c, flagKey, defaultValue, ec, coerceString)
}

// EvaluateFloat resolves flagKey and coerces the addressed value to float64.
func (c *Client) EvaluateFloat(ctx context.Context, flagKey string, defaultValue float64, ec EvaluationContext) EvaluationResult[float64] {
	return evaluate(ctx, c, flagKey, defaultValue, ec, coerceFloat)
}

// EvaluateInt resolves flagKey and narrows the addressed value to int64.
// Non-integral or out-of-range numbers fail rather than saturate.
func (c *Client) EvaluateInt(ctx context.Context, flagKey string, defaultValue int64, ec EvaluationContext) EvaluationResult[int64] {
	return evaluate(ctx, c, flagKey, defaultValue, ec, coerceInt)
}

// EvaluateObject resolves flagKey and decodes the addressed value's
// canonical JSON into T.
func EvaluateObject[T any](ctx context.Context, c *Client, flagKey string, defaultValue T, ec EvaluationContext) EvaluationResult[T] {
	return evaluate(ctx, c, flagKey, defaultValue, ec, coerceObject[T])
}

// evaluate orchestrates one typed evaluation: parse dot-notation, resolve
// the base flag, extract and coerce the addressed value, and enqueue apply
// telemetry. Expected failures come back as a failed result carrying the
// caller's default; nothing on this path panics or returns an error.
func evaluate[T any](ctx context.Context, c *Client, flagKey string, defaultValue T, ec EvaluationContext, coerce func(Value) (T, error)) EvaluationResult[T] {
	start := time.Now()

	base, _ := ParseDotNotation(flagKey)
	if base == "" {
		c.metrics.ResolvesTotal.WithLabelValues("error").Inc()
		return failedResult(defaultValue, "flag key is empty")
	}

	resolved, resolveToken, err := c.resolver.resolveFlag(ctx, flagQualifiedName(base), ec)
	c.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Debug("flag resolution failed",
			"error", err,
			"flag", flagKey,
		)
		c.metrics.ResolvesTotal.WithLabelValues("error").Inc()
		return failedResult(defaultValue, err.Error())
	}

	value, err := extractTypedValue(resolved, flagKey, defaultValue, coerce)
	if err != nil {
		c.metrics.ResolvesTotal.WithLabelValues("extract_error").Inc()
		return failedResult(defaultValue, err.Error())
	}

	// Apply telemetry is decoupled from this call's lifetime: enqueueing is
	// a map insert and never blocks or fails the evaluation.
	if resolved.ShouldApply {
		c.applier.Log(resolved.Flag, resolveToken)
	}

	c.metrics.ResolvesTotal.WithLabelValues("ok").Inc()
	return EvaluationResult[T]{
		Value:     value,
		Reason:    resolved.Reason,
		Variant:   resolved.Variant,
		IsSuccess: true,
	}
}

func failedResult[T any](defaultValue T, message string) EvaluationResult[T] {
	return EvaluationResult[T]{
		Value:        defaultValue,
		Reason:       ReasonError,
		IsSuccess:    false,
		ErrorMessage: message,
	}
}

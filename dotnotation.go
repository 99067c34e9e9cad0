package confidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// legacyValueKey is the conventional key simple flags wrap their payload
// under. It is only consulted when no property path was given, so a flag
// property literally named "value" never shadows its siblings.
const legacyValueKey = "value"

// ParseDotNotation splits a flag key of the form "base.prop1.prop2" into the
// base flag name and the ordered property path. It is total: empty input
// yields ("", nil) and a key without dots yields (key, nil).
func ParseDotNotation(flagKey string) (string, []string) {
	if flagKey == "" {
		return "", nil
	}
	segments := strings.Split(flagKey, ".")
	if len(segments) == 1 {
		return flagKey, nil
	}
	return segments[0], segments[1:]
}

// ExtractFlagValue picks the value addressed by path out of a resolved flag's
// root map.
//
// With a non-empty path the walk starts at the root map directly. With an
// empty path the legacy "value" wrapper is unwrapped when present, otherwise
// the whole root map is returned; a missing "value" key is never an error.
func ExtractFlagValue(root Value, path []string) (Value, bool) {
	if len(path) > 0 {
		return root.Navigate(path)
	}
	if wrapped, ok := root.At(legacyValueKey); ok {
		return wrapped, true
	}
	return root, true
}

// extractTypedValue resolves the dot-notation path of flagKey against a
// resolved flag and coerces the addressed value with coerce. On any failure
// the caller's default is returned together with the error that explains it.
func extractTypedValue[T any](resolved *ResolvedFlag, flagKey string, defaultValue T, coerce func(Value) (T, error)) (T, error) {
	_, path := ParseDotNotation(flagKey)

	raw, found := ExtractFlagValue(resolved.Value, path)
	if !found && len(path) > 0 {
		return defaultValue, PropertyNotFoundError{
			Path:     strings.Join(path, "."),
			FlagName: resolved.Flag,
		}
	}

	value, err := coerce(raw)
	if errors.Is(err, errNoCoercion) {
		// Legacy best-effort fallback: a value the requested type has no
		// conversion from yields the default quietly, unlike a failed
		// conversion or a missing property path.
		return defaultValue, nil
	}
	if err != nil {
		return defaultValue, TypeCoercionError{
			msg: fmt.Sprintf("Failed to extract value from flag: %v", err),
		}
	}
	return value, nil
}

// errNoCoercion marks a value the requested type simply has no conversion
// from, as opposed to a conversion that was attempted and failed.
var errNoCoercion = errors.New("no applicable coercion")

func coerceBool(v Value) (bool, error) {
	// Only a tagged boolean maps to bool. Truthy strings or numbers fall
	// back to the default via errNoCoercion.
	if v.Kind() == KindBool {
		return v.Bool(), nil
	}
	return false, errNoCoercion
}

func coerceString(v Value) (string, error) {
	switch v.Kind() {
	case KindString:
		return v.Str(), nil
	case KindBool, KindNumber:
		return v.displayString(), nil
	}
	return "", errNoCoercion
}

func coerceFloat(v Value) (float64, error) {
	if v.Kind() == KindNumber {
		return v.Number(), nil
	}
	return 0, errNoCoercion
}

// coerceInt narrows a number to int64. Non-integral or out-of-range values
// are errors rather than saturated.
func coerceInt(v Value) (int64, error) {
	if v.Kind() != KindNumber {
		return 0, errNoCoercion
	}
	n := v.Number()
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("number %v is not an integer", n)
	}
	if n < math.MinInt64 || n >= math.MaxInt64 {
		return 0, fmt.Errorf("number %v overflows int64", n)
	}
	return int64(n), nil
}

// coerceObject decodes the canonical JSON text of a value into T. A value
// that is already null decodes to the zero T only when T tolerates JSON null.
func coerceObject[T any](v Value) (T, error) {
	var out T
	text, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(text, &out); err != nil {
		return out, err
	}
	return out, nil
}

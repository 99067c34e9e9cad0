package confidence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDotNotation(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		wantBase string
		wantPath []string
	}{
		{name: "empty", key: "", wantBase: "", wantPath: nil},
		{name: "no dots", key: "darkmode", wantBase: "darkmode", wantPath: nil},
		{name: "one level", key: "user.settings", wantBase: "user", wantPath: []string{"settings"}},
		{name: "nested", key: "a.b.c", wantBase: "a", wantPath: []string{"b", "c"}},
		{name: "empty segments kept", key: "a..c", wantBase: "a", wantPath: []string{"", "c"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base, path := ParseDotNotation(tc.key)
			assert.Equal(t, tc.wantBase, base)
			assert.Equal(t, tc.wantPath, path)
		})
	}
}

func mustValue(t *testing.T, raw string) Value {
	t.Helper()
	var v Value
	require.NoError(t, v.UnmarshalJSON([]byte(raw)))
	return v
}

func TestExtractFlagValueUnwrapsLegacyValueKey(t *testing.T) {
	root := mustValue(t, `{"value": {"x": 1}}`)

	got, found := ExtractFlagValue(root, nil)

	require.True(t, found)
	assert.Equal(t, KindMap, got.Kind())
	x, ok := got.At("x")
	require.True(t, ok)
	assert.Equal(t, float64(1), x.Number())
}

func TestExtractFlagValuePathBypassesUnwrap(t *testing.T) {
	// With a path given, navigation starts at the root map directly, so a
	// property literally named "value" never shadows its siblings.
	root := mustValue(t, `{"value": {"x": 1}}`)

	_, found := ExtractFlagValue(root, []string{"x"})
	assert.False(t, found, "x lives under the value wrapper, not at the root")

	got, found := ExtractFlagValue(root, []string{"value", "x"})
	require.True(t, found)
	assert.Equal(t, float64(1), got.Number())
}

func TestExtractFlagValueMissingValueKeyFallsBackToRoot(t *testing.T) {
	root := mustValue(t, `{"enabled": true}`)

	got, found := ExtractFlagValue(root, nil)

	require.True(t, found, "a missing top-level value key is never an extraction error")
	assert.Equal(t, KindMap, got.Kind())
}

func newResolvedFlag(t *testing.T, raw string) *ResolvedFlag {
	t.Helper()
	return &ResolvedFlag{
		Flag:  "flags/user",
		Value: mustValue(t, raw),
	}
}

func TestExtractTypedValueBool(t *testing.T) {
	resolved := newResolvedFlag(t, `{"settings": {"darkMode": true}}`)

	got, err := extractTypedValue(resolved, "user.settings.darkMode", false, coerceBool)

	require.NoError(t, err)
	assert.True(t, got)
}

func TestExtractTypedValuePathNotFound(t *testing.T) {
	resolved := newResolvedFlag(t, `{"settings": {"darkMode": true}}`)

	got, err := extractTypedValue(resolved, "user.settings.missing", false, coerceBool)

	assert.False(t, got)
	require.Error(t, err)
	assert.Equal(t, "Property path 'settings.missing' not found in flag 'flags/user'", err.Error())
}

func TestExtractTypedValueNonMapMidPathIsNotFound(t *testing.T) {
	resolved := newResolvedFlag(t, `{"settings": "compact"}`)

	_, err := extractTypedValue(resolved, "user.settings.darkMode", false, coerceBool)

	var notFound PropertyNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestExtractTypedValueNullIsDistinctFromAbsent(t *testing.T) {
	resolved := newResolvedFlag(t, `{"settings": {"darkMode": null}}`)

	// The property exists and is null: no not-found error, the legacy
	// fallback yields the default quietly.
	got, err := extractTypedValue(resolved, "user.settings.darkMode", true, coerceBool)

	require.NoError(t, err)
	assert.True(t, got)
}

func TestExtractTypedValueStringCoercion(t *testing.T) {
	resolved := newResolvedFlag(t, `{"retries": 3, "sticky": false, "mode": "dark"}`)

	gotNumber, err := extractTypedValue(resolved, "user.retries", "", coerceString)
	require.NoError(t, err)
	assert.Equal(t, "3", gotNumber)

	gotBool, err := extractTypedValue(resolved, "user.sticky", "", coerceString)
	require.NoError(t, err)
	assert.Equal(t, "false", gotBool)

	gotString, err := extractTypedValue(resolved, "user.mode", "", coerceString)
	require.NoError(t, err)
	assert.Equal(t, "dark", gotString)
}

func TestExtractTypedValueNoTruthyBoolCoercion(t *testing.T) {
	resolved := newResolvedFlag(t, `{"enabled": "true"}`)

	got, err := extractTypedValue(resolved, "user.enabled", false, coerceBool)

	require.NoError(t, err, "unconvertible values fall back to the default without error")
	assert.False(t, got)
}

func TestExtractTypedValueIntNarrowing(t *testing.T) {
	resolved := newResolvedFlag(t, `{"limit": 250}`)

	got, err := extractTypedValue(resolved, "user.limit", int64(0), coerceInt)

	require.NoError(t, err)
	assert.Equal(t, int64(250), got)
}

func TestExtractTypedValueIntOverflowErrors(t *testing.T) {
	resolved := &ResolvedFlag{
		Flag: "flags/user",
		Value: MapValue(map[string]Value{
			"limit": NumberValue(math.MaxFloat64),
		}),
	}

	got, err := extractTypedValue(resolved, "user.limit", int64(7), coerceInt)

	assert.Equal(t, int64(7), got)
	var coercion TypeCoercionError
	require.ErrorAs(t, err, &coercion)
	assert.Contains(t, err.Error(), "Failed to extract value from flag")
}

func TestExtractTypedValueNonIntegralErrors(t *testing.T) {
	resolved := newResolvedFlag(t, `{"ratio": 0.5}`)

	_, err := extractTypedValue(resolved, "user.ratio", int64(0), coerceInt)

	var coercion TypeCoercionError
	require.ErrorAs(t, err, &coercion)
}

func TestExtractTypedValueObjectDecoding(t *testing.T) {
	type settings struct {
		DarkMode bool   `json:"darkMode"`
		Theme    string `json:"theme"`
	}
	resolved := newResolvedFlag(t, `{"settings": {"darkMode": true, "theme": "midnight"}}`)

	got, err := extractTypedValue(resolved, "user.settings", settings{}, coerceObject[settings])

	require.NoError(t, err)
	assert.Equal(t, settings{DarkMode: true, Theme: "midnight"}, got)
}

func TestExtractTypedValuePassThroughFloat(t *testing.T) {
	resolved := newResolvedFlag(t, `{"ratio": 0.25}`)

	got, err := extractTypedValue(resolved, "user.ratio", 0.0, coerceFloat)

	require.NoError(t, err)
	assert.Equal(t, 0.25, got)
}

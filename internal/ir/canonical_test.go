package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"min int64", IRInt(-9223372036854775808), "-9223372036854775808"},
		{"bool", IRBool(true), "true"},
		{"plain int", 7, "7"},
		{"plain bool", false, "false"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortsNestedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRArray{IRInt(3), IRObject{"y": IRBool(true), "x": IRBool(false)}},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[3,{"x":false,"y":true}],"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalGoMaps(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{
		"version": int64(1),
		"state":   "active",
		"context": IRObject{"count": IRInt(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"context":{"count":0},"state":"active","version":1}`, string(result))
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"html is not escaped", "<a & b>", `"<a & b>"`},
		{"quote and backslash", `say "hi" \o/`, `"say \"hi\" \\o/"`},
		{"newline and tab", "a\nb\tc", `"a\nb\tc"`},
		{"other control char", "\x01", `"\u0001"`},
		{"line separator passes through", "a\u2028b", "\"a\u2028b\""},
		{"literal backslash u", `\u2028`, `"\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalises to U+00E9.
	decomposed, err := MarshalCanonical(IRString("caf\u0065\u0301"))
	require.NoError(t, err)
	composed, err := MarshalCanonical(IRString("caf\u00e9"))
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonicalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"nil", nil},
		{"IRNull", IRNull{}},
		{"float", 1.5},
		{"nested null", IRObject{"a": IRNull{}}},
		{"float in map", map[string]any{"a": float32(1)}},
		{"unsupported", struct{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
		})
	}
}

func TestMustMarshalCanonicalPanics(t *testing.T) {
	assert.Panics(t, func() { MustMarshalCanonical(IRNull{}) })
	assert.Equal(t, `{"a":1}`, string(MustMarshalCanonical(IRObject{"a": IRInt(1)})))
}

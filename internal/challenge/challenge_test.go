package challenge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeFullChallenge(t *testing.T) {
	got := Encode(Params{Realm: "api", Error: "invalid_token", Description: "token expired"})
	require.Equal(t, `Bearer realm="api", error="invalid_token", error_description="token expired"`, got)
}

func TestEncodeBareChallenge(t *testing.T) {
	got := Encode(Params{Realm: "api"})
	require.Equal(t, `Bearer realm="api"`, got)
}

func TestEncodeNoParams(t *testing.T) {
	require.Equal(t, "Bearer", Encode(Params{}))
}

func TestEncodeDoesNotEscapeEmbeddedQuotes(t *testing.T) {
	got := Encode(Params{Realm: "api", Error: "invalid_token", Description: `say "hi"`})
	require.Equal(t, `Bearer realm="api", error="invalid_token", error_description="say "hi""`, got)
}

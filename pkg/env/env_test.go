package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPrefersPrefixedVariable(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	assert.Equal(t, "json", Get("LOG_FORMAT", "x"))

	t.Setenv("EPOS_LOG_FORMAT", "console")
	assert.Equal(t, "console", Get("LOG_FORMAT", "x"))

	assert.Equal(t, "fallback", Get("EPOS_TEST_UNSET_KEY", "fallback"))
}

func TestBool(t *testing.T) {
	for raw, want := range map[string]bool{"1": true, "TRUE": true, "yes": true, "0": false, "nope": false, "": false} {
		t.Setenv("EPOS_LOG_NO_COLOR", raw)
		assert.Equal(t, want, Bool("LOG_NO_COLOR"), raw)
	}
}

package internaltypes

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarksSurviveWrapping(t *testing.T) {
	base := fmt.Errorf("dial tcp: connection refused")
	err := Wrap(Mark(base, ErrTransient), "submit booking")

	assert.True(t, Transient(err))
	assert.False(t, Definitive(err))
	assert.False(t, CredentialExpired(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestConfigurationErrorNamesField(t *testing.T) {
	err := Wrap(Configf("BYHOUR", "25", "must be within 0..23"), "intent 3")

	var ce *ConfigurationError
	require.True(t, As(err, &ce))
	assert.Equal(t, "BYHOUR", ce.Field)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), `BYHOUR="25"`)
}

func TestNilIsNeverClassified(t *testing.T) {
	assert.False(t, Transient(nil))
	assert.False(t, Definitive(nil))
	assert.False(t, CredentialExpired(nil))
}

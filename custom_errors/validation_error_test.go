package custom_errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTooSmall = errors.New("max queue size must be positive")

func TestValidationError_Empty(t *testing.T) {
	v := &ValidationError{}
	v.Add(nil)

	assert.False(t, v.HasError())
	assert.Empty(t, v.Error())
}

func TestValidationError_SingleError(t *testing.T) {
	v := &ValidationError{}
	v.Add(errTooSmall)

	assert.True(t, v.HasError())
	assert.Equal(t, "invalid config: max queue size must be positive", v.Error())
	assert.ErrorIs(t, v, errTooSmall)
}

func TestValidationError_SummarizesSeveral(t *testing.T) {
	v := &ValidationError{}
	v.Add(errTooSmall)
	v.Add(errors.New("max delay wait must be positive"))

	assert.Equal(t,
		"invalid config (2 errors): max queue size must be positive; max delay wait must be positive",
		v.Error())
	assert.ErrorIs(t, v, errTooSmall)
}

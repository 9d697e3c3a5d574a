package automod

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	assert := assert.New(t)

	config := TestConfigFixture()
	assert.NoError(config.Validate())

	bad := config
	bad.CollectionPath = ""
	assert.ErrorIs(bad.Validate(), ErrConfiguration)

	bad = config
	bad.TextField = " "
	assert.ErrorIs(bad.Validate(), ErrConfiguration)

	bad = config
	bad.Provider = "perspective"
	assert.ErrorIs(bad.Validate(), ErrConfiguration)

	bad = config
	bad.Action = "shadowban"
	assert.ErrorIs(bad.Validate(), ErrConfiguration)

	bad = config
	bad.Sensitivity = 1.5
	assert.ErrorIs(bad.Validate(), ErrConfiguration)

	bad = config
	bad.CollectionPath = ""
	bad.Sensitivity = 7
	assert.ErrorIs(bad.ValidateProvider(), ErrConfiguration)
	bad.Sensitivity = 0.5
	assert.NoError(bad.ValidateProvider())

	edge := config
	edge.Sensitivity = 0.0
	assert.NoError(edge.Validate())
	edge.Sensitivity = 1.0
	assert.NoError(edge.Validate())
}

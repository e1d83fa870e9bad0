package apperrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassificationSurvivesWrapping(t *testing.T) {
	err := Wrap(NotFoundf("template %s not found", "abc"), "royalty walk")

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.False(t, IsCorruptLineage(err))
	assert.Contains(t, err.Error(), "template abc not found")
}

func TestMissingVariableCarriesName(t *testing.T) {
	err := Wrapf(MissingVariable("task"), "render %s", "tpl")

	assert.True(t, IsMissingVariable(err))
	name, ok := MissingVariableName(err)
	assert.True(t, ok)
	assert.Equal(t, "task", name)
}

func TestNilIsUnclassified(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsValidation(nil))
	assert.False(t, IsMissingVariable(nil))
	assert.False(t, IsCorruptLineage(nil))

	_, ok := MissingVariableName(Validationf("bad"))
	assert.False(t, ok)
}

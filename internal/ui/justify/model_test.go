package justify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLength(t *testing.T) {
	validate := ValidateLength(10)

	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"empty", "", false},
		{"whitespace only", "           ", false},
		{"short after trim", "   late   ", false},
		{"exact", "Bank delay", true},
		{"multibyte counted as runes", "विलंब हुआ है आज", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.input)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStartResetsForm(t *testing.T) {
	m := New(10, 80, 24)
	assert.Empty(t, m.View())

	cmd := m.Start("t-1", "Clearing")
	_ = cmd
	assert.Equal(t, "t-1", m.TaskID())
	assert.Contains(t, m.View(), "Justify delay: Clearing")
}

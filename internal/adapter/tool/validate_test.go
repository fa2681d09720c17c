package tool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- ValidateAll ---

func TestValidateAll_AllNil(t *testing.T) {
	assert.NoError(t, ValidateAll(nil, nil, nil))
}

func TestValidateAll_Empty(t *testing.T) {
	assert.NoError(t, ValidateAll())
}

func TestValidateAll_ReturnsFirst(t *testing.T) {
	first := fmt.Errorf("first")
	second := fmt.Errorf("second")
	err := ValidateAll(nil, first, second)
	assert.Equal(t, first, err)
}

func TestValidateAll_IntegrationWithRequireField(t *testing.T) {
	err := ValidateAll(
		RequireField("username", "henry"),
		RequireField("restaurant_name", ""),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'restaurant_name' is required")
}

// --- RequireField ---

func TestRequireField_EdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		value     string
		wantErr   bool
		wantInMsg string
	}{
		{"whitespace-only passes (not trimmed)", "username", "   ", false, ""},
		{"tab-only passes", "username", "\t", false, ""},
		{"newline-only passes", "username", "\n", false, ""},
		{"error includes field name", "dish_name", "", true, "'dish_name' is required"},
		{"error format is consistent", "restaurant_name", "", true, "'restaurant_name' is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireField(tt.field, tt.value)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantInMsg, err.Error())
		})
	}
}

// --- RequireFields ---

func TestRequireFields_EdgeCases(t *testing.T) {
	t.Run("zero args returns nil", func(t *testing.T) {
		assert.NoError(t, RequireFields())
	})

	t.Run("error identifies the correct missing field", func(t *testing.T) {
		err := RequireFields("username", "henry", "restaurant_name", "", "dish_name", "Fries")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'restaurant_name'")
		assert.NotContains(t, err.Error(), "'username'")
		assert.NotContains(t, err.Error(), "'dish_name'")
	})

	t.Run("returns first missing field only", func(t *testing.T) {
		err := RequireFields("a", "", "b", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'a'")
		assert.NotContains(t, err.Error(), "'b'")
	})

	t.Run("odd args detected with single arg", func(t *testing.T) {
		err := RequireFields("lonely")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "odd number")
	})

	t.Run("odd args detected with three args", func(t *testing.T) {
		err := RequireFields("a", "1", "b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "odd number")
	})
}

package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profileForm struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=30,username"`
	Bio      string  `json:"bio" validate:"max=10"`
}

func strPtr(s string) *string { return &s }

func TestStruct(t *testing.T) {
	tests := []struct {
		name      string
		form      profileForm
		wantField string
	}{
		{name: "valid", form: profileForm{Username: strPtr("jane_doe"), Bio: "hi"}},
		{name: "nil username skipped", form: profileForm{}},
		{name: "uppercase rejected", form: profileForm{Username: strPtr("Jane")}, wantField: "username"},
		{name: "too short", form: profileForm{Username: strPtr("ab")}, wantField: "username"},
		{name: "bio too long", form: profileForm{Bio: "0123456789x"}, wantField: "bio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.form)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			require.True(t, verrs.HasErrors())
			assert.Equal(t, tt.wantField, verrs[0].Field)
			assert.Contains(t, verrs.Error(), tt.wantField+": ")
		})
	}
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("q", "jane", "max=5"))

	err := Var("q", "jane doe", "max=5")
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "q", verrs[0].Field)
	assert.Equal(t, "must be at most 5 characters", verrs[0].Message)
}

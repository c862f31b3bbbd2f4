package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkat/octopoes/model"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		objType string
		natKey  string
	}{
		{
			name:    "simple",
			input:   "Network|internet",
			objType: "Network",
			natKey:  "internet",
		},
		{
			name:    "nested natural key",
			input:   "Hostname|internet|example.com",
			objType: "Hostname",
			natKey:  "internet|example.com",
		},
		{
			name:    "compound key",
			input:   "IPPort|internet|1.1.1.1|tcp|80",
			objType: "IPPort",
			natKey:  "internet|1.1.1.1|tcp|80",
		},
		{
			name:    "no separator",
			input:   "Network",
			wantErr: true,
		},
		{
			name:    "empty type",
			input:   "|internet",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := model.ParseReference(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, model.ErrInvalidReference)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.objType, ref.ObjectType())
			assert.Equal(t, tt.natKey, ref.NaturalKey())
			assert.Equal(t, tt.input, ref.String())
		})
	}
}

func TestMakeReferenceRoundTrip(t *testing.T) {
	ref := model.MakeReference("Hostname", "internet|example.com")
	assert.Equal(t, "Hostname", ref.ObjectType())
	assert.Equal(t, "internet|example.com", ref.NaturalKey())

	parsed, err := model.ParseReference(ref.String())
	require.NoError(t, err)
	assert.Equal(t, ref, parsed)
}

func TestFormatIDShort(t *testing.T) {
	short := "Network|internet"
	assert.Equal(t, short, model.FormatIDShort(short))

	long := string(model.MakeReference("Hostname", "internet|a-very-long-hostname.with.many.labels.example.com"))
	got := model.FormatIDShort(long)
	assert.Len(t, got, 33)
	assert.Contains(t, got, "...")
}

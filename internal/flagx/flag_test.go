package flagx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-u", "http://host/wi", "-x", "ignored"},
			allowed: []string{"-u"},
			want:    []string{"-u", "http://host/wi"},
		},
		{
			name:    "equals form",
			args:    []string{"--cache=wi.db", "-u=http://host"},
			allowed: []string{"-u"},
			want:    []string{"-u=http://host"},
		},
		{
			name:    "flag followed by another flag keeps no value",
			args:    []string{"-v", "-u", "http://host"},
			allowed: []string{"-v", "-u"},
			want:    []string{"-v", "-u", "http://host"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-a", "b"},
			allowed: nil,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

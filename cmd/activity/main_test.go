package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"referral", []string{"referral", "-referrer", "alice", "-referred", "bob"}, false},
		{"referral missing referred", []string{"referral", "-referrer", "alice"}, true},
		{"record now", []string{"record", "-user", "alice"}, false},
		{"record at", []string{"record", "-user", "alice", "-at", "2025-03-01T10:00:00Z"}, false},
		{"record bad time", []string{"record", "-user", "alice", "-at", "yesterday"}, true},
		{"verify", []string{"verify", "-user", "alice", "-kyc"}, false},
		{"verify without user", []string{"verify", "-kyc"}, true},
		{"unknown", []string{"delete"}, true},
		{"empty", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := parseCommand(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cmd)
		})
	}
}

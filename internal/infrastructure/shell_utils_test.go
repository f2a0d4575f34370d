package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "notify-send", "notify-send"},
		{"empty", "", "''"},
		{"spaces", "Download Failed", "'Download Failed'"},
		{"single quote", "Jojo's", `'Jojo'"'"'s'`},
		{"double quote", `display "x"`, `'display "x"'`},
		{"dollar", "$HOME", "'$HOME'"},
		{"unicode only", "ワンピース", "ワンピース"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shellQuote(tt.input))
		})
	}
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "notify-send 'Download Complete' 'Blame! saved'",
		commandLine("notify-send", "Download Complete", "Blame! saved"))
	assert.Equal(t, "osascript", commandLine("osascript"))
}

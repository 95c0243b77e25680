package app

import (
	"testing"
)

func TestParseCommand_DefaultsToServe(t *testing.T) {
	cmd := ParseCommand([]string{})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_KnownCommands(t *testing.T) {
	tests := []struct {
		arg  string
		want Command
	}{
		{"serve", CommandServe},
		{"migrate", CommandMigrate},
		{"reset", CommandReset},
		{"ingest", CommandIngest},
		{"report", CommandReport},
		{"export", CommandExport},
		{"healthcheck", CommandHealthcheck},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			if got := ParseCommand([]string{tt.arg}); got != tt.want {
				t.Errorf("ParseCommand([%s]) = %q, want %q", tt.arg, got, tt.want)
			}
		})
	}
}

func TestParseCommand_UnknownDefaultsToServe(t *testing.T) {
	cmd := ParseCommand([]string{"worker"})
	if cmd != CommandServe {
		t.Errorf("ParseCommand([worker]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd := ParseCommand([]string{"export", "/tmp/out.parquet"})
	if cmd != CommandExport {
		t.Errorf("ParseCommand([export /tmp/out.parquet]) = %q, want %q", cmd, CommandExport)
	}
}

func TestCommandArg(t *testing.T) {
	args := []string{"report", "/tmp/report.json"}

	if got := commandArg(args, 0); got != "/tmp/report.json" {
		t.Errorf("commandArg(args, 0) = %q, want %q", got, "/tmp/report.json")
	}
	if got := commandArg(args, 1); got != "" {
		t.Errorf("commandArg(args, 1) = %q, want empty", got)
	}
	if got := commandArg(nil, 0); got != "" {
		t.Errorf("commandArg(nil, 0) = %q, want empty", got)
	}
}

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
		{"healthcheck", CommandHealthcheck},
		{"login", CommandLogin},
		{"logout", CommandLogout},
		{"whoami", CommandWhoami},
		{"catalog", CommandCatalog},
		{"book", CommandBook},
		{"borrow", CommandBorrow},
		{"loans", CommandLoans},
		{"return", CommandReturn},
		{"users", CommandUsers},
		{"stats", CommandStats},
	}

	for _, tt := range tests {
		if got := ParseCommand([]string{tt.arg}); got != tt.want {
			t.Errorf("ParseCommand([%s]) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}

func TestParseCommand_UnknownReturnsHelp(t *testing.T) {
	cmd := ParseCommand([]string{"unknown"})
	if cmd != CommandHelp {
		t.Errorf("ParseCommand([unknown]) = %q, want %q", cmd, CommandHelp)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd := ParseCommand([]string{"catalog", "list", "-search", "漱石"})
	if cmd != CommandCatalog {
		t.Errorf("ParseCommand([catalog list ...]) = %q, want %q", cmd, CommandCatalog)
	}
}

func TestIsClientCommand(t *testing.T) {
	tests := []struct {
		cmd  Command
		want bool
	}{
		{CommandServe, false},
		{CommandMigrate, false},
		{CommandHealthcheck, false},
		{CommandHelp, false},
		{CommandLogin, true},
		{CommandLogout, true},
		{CommandWhoami, true},
		{CommandCatalog, true},
		{CommandBook, true},
		{CommandBorrow, true},
		{CommandLoans, true},
		{CommandReturn, true},
		{CommandUsers, true},
		{CommandStats, true},
	}

	for _, tt := range tests {
		if got := tt.cmd.IsClientCommand(); got != tt.want {
			t.Errorf("%q.IsClientCommand() = %v, want %v", tt.cmd, got, tt.want)
		}
	}
}

// Package autostart registers the headless bridge to start at user login.
package autostart

import (
	"errors"
	"strings"
)

// AppName is the name of the login entry.
const AppName = "PrinterBridge"

var ErrUnsupported = errors.New("autostart is only supported on windows")

// CommandLine builds the command stored in the login entry: the quoted
// executable followed by the run subcommand and its config path.
func CommandLine(executablePath, configPath string) string {
	parts := []string{quote(executablePath), "run"}
	if configPath != "" {
		parts = append(parts, "-config", quote(configPath))
	}

	return strings.Join(parts, " ")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, ``) + `"`
}

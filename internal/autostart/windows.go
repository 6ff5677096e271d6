//go:build windows

package autostart

import (
	"errors"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const runKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run`

// Status returns the registered command line, empty when not registered.
func Status() (string, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = k.Close()
	}()

	v, _, err := k.GetStringValue(AppName)
	if errors.Is(err, registry.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(v), nil
}

func Enable(executablePath, configPath string) error {
	k, _, err := registry.CreateKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer func() {
		_ = k.Close()
	}()

	return k.SetStringValue(AppName, CommandLine(executablePath, configPath))
}

func Disable() error {
	k, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer func() {
		_ = k.Close()
	}()

	err = k.DeleteValue(AppName)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	}

	return err
}

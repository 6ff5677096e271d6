//go:build !windows

package autostart

func Status() (string, error) {
	return "", ErrUnsupported
}

func Enable(_, _ string) error {
	return ErrUnsupported
}

func Disable() error {
	return ErrUnsupported
}

package autostart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandLine(t *testing.T) {
	assert.Equal(t,
		`"C:\Program Files\PrinterBridge\printer-bridge.exe" run -config "C:\ProgramData\PrinterBridge\config.json"`,
		CommandLine(`C:\Program Files\PrinterBridge\printer-bridge.exe`, `C:\ProgramData\PrinterBridge\config.json`))

	assert.Equal(t, `"/usr/bin/printer-bridge" run`, CommandLine("/usr/bin/printer-bridge", ""))
	assert.Equal(t, `"a b" run`, CommandLine(`"a b"`, ""))
}

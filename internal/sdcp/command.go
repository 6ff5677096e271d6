// Package sdcp encodes and decodes frames of the printer's local socket
// protocol (SDCP) and derives semantic state from its status snapshots.
package sdcp

import "strconv"

// Command is an SDCP command code. The same code is echoed back by the
// device in its acknowledgement and reused as Cmd in cloud responses.
type Command int

const (
	CmdStatus        Command = 0
	CmdStartPrint    Command = 128
	CmdPausePrint    Command = 129
	CmdStopPrint     Command = 130
	CmdResumePrint   Command = 131
	CmdFileList      Command = 258
	CmdControlDevice Command = 403

	// CmdRemotePrint never reaches the device. It tags progress records of
	// the remote print pipeline on the cloud response topic.
	CmdRemotePrint Command = 1001
)

// AckKind tells the router how to answer a device acknowledgement.
type AckKind int

const (
	// AckIgnored acknowledgements are not forwarded to the cloud.
	AckIgnored AckKind = iota
	// AckTerminal acknowledgements are forwarded as OK/FAIL.
	AckTerminal
	// AckListing acknowledgements carry a file listing.
	AckListing
)

func (c Command) AckKind() AckKind {
	switch c {
	case CmdStartPrint, CmdPausePrint, CmdStopPrint, CmdResumePrint, CmdControlDevice:
		return AckTerminal
	case CmdFileList:
		return AckListing
	default:
		return AckIgnored
	}
}

func (c Command) String() string {
	switch c {
	case CmdStatus:
		return "status"
	case CmdStartPrint:
		return "start_print"
	case CmdPausePrint:
		return "pause"
	case CmdStopPrint:
		return "stop"
	case CmdResumePrint:
		return "resume"
	case CmdFileList:
		return "file_list"
	case CmdControlDevice:
		return "control"
	case CmdRemotePrint:
		return "remote_print"
	default:
		return strconv.Itoa(int(c))
	}
}

var statusNames = map[int]string{
	0:  "idle",
	1:  "homing",
	2:  "dropping",
	3:  "printing",
	4:  "lifting",
	5:  "pausing",
	6:  "paused",
	7:  "stopping",
	8:  "stopped",
	9:  "complete",
	10: "file_checking",
	12: "recovery",
	13: "printing",
	15: "loading",
	16: "preheating",
	20: "leveling",
}

// StatusName maps a PrintInfo.Status code to its semantic name. Unknown
// codes are reported as idle.
func StatusName(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}

	return "idle"
}

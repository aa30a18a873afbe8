package main

import (
	"coursepilot/cmd/coursepilot/commands"
	"coursepilot/internal/components/osutil"
)

func main() {
	commands.ExecuteContext(osutil.SignalContext())
}

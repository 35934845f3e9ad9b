package main

import (
	"fmt"
	"io"
	"os"

	"github.com/lixenwraith/tickgate/core"
)

// terminalCrashHandler restores the terminal before reporting a crashed engine goroutine
// restore must be safe to call from any goroutine; exit ends the process
func terminalCrashHandler(restore func(), logFile *os.File, stderr io.Writer, exit func(int)) core.CrashHandler {
	return func(r any, stack []byte) {
		restore()

		core.Logger().Error("goroutine crashed", "panic", fmt.Sprint(r), "stack", string(stack))
		if logFile != nil {
			logFile.Sync()
		}

		fmt.Fprintf(stderr, "\r\ncrash: %v\r\n%s\r\n", r, stack)
		exit(1)
	}
}

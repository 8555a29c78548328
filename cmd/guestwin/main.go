// File: cmd/guestwin/main.go
package main

import (
	"os"

	"github.com/xkilldash9x/guestwin/cmd"
)

// osExit allows tests to intercept the exit code.
var osExit = os.Exit

func main() {
	osExit(cmd.Main())
}

// ./main.go
package main

import (
	"os"

	"github.com/xkilldash9x/guestwin/cmd"
)

// main is the entry point for the guestwin CLI.
func main() {
	os.Exit(cmd.Main())
}

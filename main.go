// The main package for the webgrab executable.
package main

import (
	"os"

	"github.com/skreps/webgrab/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

// Command factdb manages and queries factdb databases from the shell.
package main

import (
	"os"

	"github.com/roach88/factdb/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}

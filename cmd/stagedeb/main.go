// Command stagedeb builds Debian binary packages from a staging directory.
package main

import "github.com/etnz/stagedeb/cmd/stagedeb/cmd"

func main() {
	cmd.Execute()
}

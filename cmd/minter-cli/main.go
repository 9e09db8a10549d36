package main

import "minter-core/cmd/minter-cli/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/keep-tools/keep-install/cmd/keep-install/cmd"

func main() {
	cmd.Execute()
}

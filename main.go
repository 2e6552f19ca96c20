package main

import "github.com/kozaktomas/presence-guard/cmd"

func main() {
	cmd.Execute()
}

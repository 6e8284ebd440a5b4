package main

import "github.com/rajshirolkar/evaluation-copilot/cmd"

func main() {
	cmd.Execute()
}

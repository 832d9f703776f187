package main

import "github.com/webchat-ai/webchat/cmd"

func main() {
	cmd.Execute()
}

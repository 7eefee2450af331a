package main

import "github.com/nfrund/chatclient/cmd/chat/cmd"

func main() {
	cmd.Execute()
}

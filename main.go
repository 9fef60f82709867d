package main

import "github.com/apkhub/apkhub-server/cmd"

func main() {
	cmd.Execute()
}

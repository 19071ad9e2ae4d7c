package main

import "github.com/lyzr/connected/cmd/connectctl/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/ecosort/ecoscan/cmd"

func main() {
	cmd.Execute()
}

package main

import "foresight/cmd"

func main() {
	cmd.Execute()
}

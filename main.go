package main

import "maestro/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/qobs-build/hermetic/cmd"

func main() {
	cmd.Execute()
}

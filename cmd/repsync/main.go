package main

import "repsync/cmd/repsync/root"

func main() {
	root.Execute()
}

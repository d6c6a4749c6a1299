package main

import "github.com/audiolibrelab/cliprec/cmd"

func main() {
	cmd.Execute()
}

package main

import (
	"os"

	streamrelaycmder "github.com/papercomputeco/streamrelay/cmd/streamrelay"
)

func main() {
	cmd := streamrelaycmder.NewStreamrelayCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

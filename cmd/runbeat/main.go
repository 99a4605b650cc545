package main

import "github.com/lowaak/smart-trainer/runbeat/cmd/runbeat/cmd"

func main() {
	cmd.Execute()
}

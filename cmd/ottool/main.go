package main

import "github.com/OpenTraceLab/OpenTraceTransport/cmd/ottool/cmd"

func main() {
	cmd.Execute()
}

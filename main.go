package main

import "github.com/mj1618/mobile-mcp/cmd"

func main() {
	cmd.Execute()
}

package main

import (
	"github.com/codycordova/codychain/cmd/commands"
)

func main() {
	commands.Execute()
}

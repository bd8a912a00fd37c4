package main

import (
	"github.com/framelink/framelink/cmd"
)

func main() {
	cmd.Execute()
}

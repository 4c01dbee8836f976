package main

import (
	"chainstats/internal/cli"
)

func main() {
	cli.Execute()
}

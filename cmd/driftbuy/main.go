package main

import (
	"driftbuy/internal/cli"
)

func main() {
	cli.Execute()
}

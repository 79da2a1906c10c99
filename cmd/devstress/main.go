package main

import (
	"github.com/devstress/devstress/internal/cli"
)

func main() {
	cli.Execute()
}

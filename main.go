package main

import "github.com/mikematt33/qgate/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/felixgeelhaar/commandecho/cmd/commandecho/cli"

func main() {
	cli.Execute()
}

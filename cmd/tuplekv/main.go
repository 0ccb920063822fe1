package main

import "github.com/andreyvit/tuplekv/cmd/tuplekv/cmd"

func main() {
	cmd.Execute()
}

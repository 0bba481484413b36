package main

import "github.com/alexjakubow/multi-dataverse/cmd/dvmigrate/cmd"

func main() {
	cmd.Execute()
}

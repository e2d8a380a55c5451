package main

import "github.com/quatton/expodist/apps/distribution/cmd"

func main() {
	cmd.Execute()
}

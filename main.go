package main

import "github.com/Mouradif/aurio/cmd"

func main() {
	cmd.Execute()
}

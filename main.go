package main

import "github.com/Davknapp/p4est/cmd"

func main() {
	cmd.Execute()
}

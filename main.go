package main

import "github.com/nextlevelbuilder/chatvault/cmd"

func main() {
	cmd.Execute()
}

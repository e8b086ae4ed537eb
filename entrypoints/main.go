package main

import "github.com/Laisky/laisky-file-quarantine/cmd"

func main() {
	cmd.Execute()
}

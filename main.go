package main

import "github.com/fazhang/genomeqs/cmd"

func main() {
	cmd.Execute()
}

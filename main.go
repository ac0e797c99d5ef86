package main

import "github.com/mlukaszek/steel-llama/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/iksnae/practice-sync/cmd"

func main() {
	cmd.Execute()
}

package main

import "lab-notebook/notebook_go/cmd"

func main() {
	cmd.Execute()
}

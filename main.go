package main

import "imagesweep/cmd"

func main() {
	cmd.Execute()
}

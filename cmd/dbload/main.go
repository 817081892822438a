package main

import "dbload/cmd"

func main() {
	cmd.Execute()
}

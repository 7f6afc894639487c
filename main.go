package main

import "github.com/leaktk/sysvolscan/cmd"

func main() {
	cmd.Execute()
}

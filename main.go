package main

import "github.com/vidhub/apiserver/cmd"

func main() {
	cmd.Execute()
}

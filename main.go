package main

import "github.com/devletter/newsletterd/cmd"

func main() {
	cmd.Execute()
}

package main

import "k3l.io/go-sinkhorn/cmd/sinkhorn/cmd"

func main() {
	cmd.Execute()
}

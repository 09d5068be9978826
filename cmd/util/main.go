package main

import (
	"github.com/h2registry/h2-registry/cmd/util/cmd"
)

func main() {
	cmd.Execute()
}

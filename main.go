package main

import (
	"github.com/wenzapen/browse/cmd"
)

func main() {
	cmd.Execute()
}

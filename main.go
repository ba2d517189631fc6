package main

import (
	"github.com/keiu-jiyu/VideoChat/cmd"
	"github.com/keiu-jiyu/VideoChat/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}

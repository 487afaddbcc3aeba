package main

import (
	"os"

	"inferd/internal/inferctl"
)

func main() {
	os.Exit(inferctl.Main())
}

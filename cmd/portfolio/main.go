package main

import (
	"os"

	"ai-portfolio/internal/commands"
)

func main() {
	os.Exit(commands.Execute())
}

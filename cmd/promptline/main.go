package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := NewPromptlineCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "promptline:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/contest-leaderboard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand(cli.NewSaramaProducer).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

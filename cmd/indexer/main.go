package main

import "github.com/cryptomart/indexer/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/susu3304/chipledger/internal/cli"

func main() {
	cli.Execute()
}

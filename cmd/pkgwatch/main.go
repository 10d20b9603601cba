package main

import "github.com/vietddude/pkgwatch/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/aweris/s3cache/cmd/s3cache/cmd"

func main() {
	cmd.Execute()
}

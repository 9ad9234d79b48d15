package main

import "github.com/T-6891/pgXRay/cmd"

func main() {
	cmd.Execute()
}

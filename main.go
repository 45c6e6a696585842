package main

import "github.com/MrCodeEU/FaceGate/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/MeKo-Tech/yomitori/cmd/yomitori/cmd"

func main() {
	cmd.Execute()
}

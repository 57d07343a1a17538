package main

import "github.com/yorozuya-cybersecurity/scanwatch/pkg/cli"

func main() {
	cli.Execute()
}

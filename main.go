package main

import (
	"github.com/lesnuages/clrhost/cmd"
)

func main() {
	cmd.Execute()
}

// ./main.go
package main

import (
	"github.com/xkilldash9x/pagepilot/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"fmt"

	"github.com/socialink/realtime-core/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}

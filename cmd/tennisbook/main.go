package main

import (
	_ "time/tzdata"

	"github.com/MoneyMiii/tennis-booking/cmd"
)

func main() {
	cmd.Execute()
}

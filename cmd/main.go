package main

import (
	"fmt"
	"os"

	_ "cirrus/lib"

	"github.com/spf13/cobra"
)

var Command = &cobra.Command{
	Use:   "cirrus",
	Short: "serverless dataflow functions.",
	Long:  `cirrus hosts the functions of a distributed query plan, collects fragments into windows and routes the results.`,
}

func main() {
	if err := Command.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

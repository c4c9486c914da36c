package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/daypilot-dev/daypilot/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "daypilot",
	Short: "DayPilot CLI",
	Long:  "Adaptive workday co-pilot: plans your day around your WHOOP health data",
}

func init() {
	rootCmd.AddCommand(cmd.WhoopCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "billing",
	Short: "Recurring billing microservice",
	Long:  "A recurring billing service that charges merchant subscriptions through PayU, Wompi and MercadoPago and bills merchants for the platform.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

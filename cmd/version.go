package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "rowdis 0.1.0"

func init() {
	rowdisCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of Rowdis",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version)
			},
		})
}

package cmd

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func init() {
	rowdisCmd.AddCommand(
		&cobra.Command{
			Use:   "config",
			Short: "List the config variables and where each was set",
			Run: func(cmd *cobra.Command, args []string) {
				tw := tablewriter.NewWriter(os.Stdout)
				tw.SetAutoFormatHeaders(false)
				tw.SetAutoWrapText(false)
				tw.SetHeader([]string{"name", "by", "value", "usage"})
				for _, s := range cfg.Settings() {
					tw.Append([]string{s.Name, s.By, s.Value, s.Usage})
				}
				tw.Render()
			},
		})
}

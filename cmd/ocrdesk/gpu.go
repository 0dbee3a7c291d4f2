package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var gpuCmd = &cobra.Command{
	Use:   "gpu",
	Short: "Show the server's GPU status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.GPU(cmd.Context())
		if err != nil {
			return err
		}
		if !st.Available {
			fmt.Fprintln(os.Stdout, "No GPU available; the server runs on CPU.")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tUTILIZATION\tALLOCATED\tRESERVED\tTOTAL")
		for _, g := range st.Info {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", g.Name, g.Utilization, g.AllocatedMemory, g.ReservedMemory, g.TotalMemory)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(gpuCmd)
}

// ABOUTME: devices subcommand listing playback devices
// ABOUTME: Prints ids usable with --device along with rates and channel limits
package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Sendspin/sendspin-companion/internal/devices"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var devicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio output devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		enum, err := devices.NewEnumerator(zap.NewNop())
		if err != nil {
			return err
		}
		defer enum.Close()

		list, err := enum.List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if devicesJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		if len(list) == 0 {
			fmt.Fprintln(out, "no output devices found")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tID\tNAME\tRATES\tCHANNELS")
		for _, d := range list {
			marker := ""
			if d.IsDefault {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", marker, d.ID, d.Name, formatRates(d.SampleRates), d.MaxChannels)
		}
		return tw.Flush()
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "Print devices as JSON")
}

func formatRates(rates []int) string {
	parts := make([]string, len(rates))
	for i, r := range rates {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ",")
}

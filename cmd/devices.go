package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/smazurov/camrelay/internal/capture"
	"github.com/spf13/cobra"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var prefix string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long: `Enumerates the capture device namespace and prints each device's name, type, ` +
			`pixel formats, and discrete frame sizes. The same listing is served at /info.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			listing := capture.BuildListing(capture.V4L2Inspector{}, prefix)
			return writeListing(cmd.OutOrStdout(), listing, asJSON)
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "/dev/video", "Device namespace prefix")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as JSON keyed by device path")
	return cmd
}

func writeListing(w io.Writer, listing capture.Listing, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	}

	if len(listing) == 0 {
		_, err := fmt.Fprintln(w, "no capture devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tID\tTYPE\tREADY\tFORMATS")
	for _, d := range listing {
		id := d.ID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", d.Path, d.Name, id, d.Type, d.Ready, formatSummary(d.Formats))
	}
	return tw.Flush()
}

// formatSummary renders formats as "MJPG 640x480,1280x720; YUYV 640x480".
func formatSummary(formats []capture.Format) string {
	if len(formats) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(formats))
	for _, f := range formats {
		sizes := make([]string, 0, len(f.Sizes))
		for _, s := range f.Sizes {
			sizes = append(sizes, fmt.Sprintf("%dx%d", s.X, s.Y))
		}
		if len(sizes) == 0 {
			parts = append(parts, f.FourCC)
			continue
		}
		parts = append(parts, f.FourCC+" "+strings.Join(sizes, ","))
	}
	return strings.Join(parts, "; ")
}

package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sebas/rangingcore/internal/oob"
)

func oobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oob",
		Short: "Inspect OOB negotiation wire messages",
	}
	cmd.AddCommand(oobDecodeCmd())
	return cmd
}

func oobDecodeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a hex-encoded OOB message and print its fields",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var raw []byte
			var err error
			if file != "" {
				raw, err = os.ReadFile(file)
			} else {
				raw, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
			if err != nil {
				return fmt.Errorf("decode hex: %w", err)
			}

			msg, err := oob.Decode(b)
			if err != nil {
				return fmt.Errorf("decode message: %w", err)
			}

			printMessage(msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read hex input from this file instead of stdin")
	return cmd
}

func printMessage(m oob.Message) {
	fmt.Printf("version:          %d\n", m.Version)
	fmt.Printf("type:              %s\n", m.Type)

	switch m.Type {
	case oob.CapabilityRequest:
		fmt.Printf("requested:         %v\n", m.RequestedTechnologies.Slice())
	case oob.CapabilityResponse:
		fmt.Printf("supported:         %v\n", m.Capabilities.Supported)
	case oob.SetConfiguration:
		fmt.Printf("config:            %v\n", m.ConfigTechnologies.Slice())
		fmt.Printf("start_immediately: %v\n", m.StartImmediately.Slice())
	case oob.SetConfigurationResponse:
		for _, s := range m.ConfigStatus {
			fmt.Printf("status:            %s ok=%v\n", s.Technology, s.OK)
		}
	case oob.StartRanging, oob.StopRanging:
		fmt.Printf("technologies:      %v\n", m.Technologies.Slice())
	case oob.StartRangingResponse, oob.StopRangingResponse:
		fmt.Printf("succeeded:         %v\n", m.SucceededTechnologies.Slice())
	}
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/noffer/internal/noffer"
)

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <noffer>",
		Short: "Print the fields of a noffer pointer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := noffer.Decode(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			field(w, "pubkey", p.PubKeyHex())
			field(w, "relay", p.Relay)
			field(w, "offer", p.Offer)
			field(w, "price type", p.PriceType)
			if p.Price != nil {
				field(w, "price", *p.Price)
			}
			return nil
		},
	}
}

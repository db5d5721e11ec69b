package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/noffer/internal/noffer"
)

var priceTypes = map[string]noffer.PriceType{
	"fixed":       noffer.PriceFixed,
	"variable":    noffer.PriceVariable,
	"spontaneous": noffer.PriceSpontaneous,
}

func encodeCmd() *cobra.Command {
	var (
		pubkey    string
		relay     string
		offer     string
		priceType string
		price     uint32
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Build a noffer pointer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(pubkey)
			if err != nil || len(key) != 32 {
				return fmt.Errorf("--pubkey must be 64 hex characters")
			}
			pt, ok := priceTypes[priceType]
			if !ok {
				return fmt.Errorf("--price-type must be fixed, variable or spontaneous")
			}

			p := &noffer.Pointer{Relay: relay, Offer: offer, PriceType: pt}
			copy(p.PubKey[:], key)
			if cmd.Flags().Changed("price") {
				p.Price = &price
			}

			s, err := noffer.Encode(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}

	cmd.Flags().StringVar(&pubkey, "pubkey", "", "seller public key (hex)")
	cmd.Flags().StringVar(&relay, "relay", "", "seller relay URL")
	cmd.Flags().StringVar(&offer, "offer", "", "offer identifier")
	cmd.Flags().StringVar(&priceType, "price-type", "fixed", "fixed, variable or spontaneous")
	cmd.Flags().Uint32Var(&price, "price", 0, "price in sats")
	cmd.MarkFlagRequired("pubkey")
	cmd.MarkFlagRequired("relay")
	cmd.MarkFlagRequired("offer")
	return cmd
}

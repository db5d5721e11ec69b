package commands

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/noffer/internal/nip69"
	"github.com/eldtechnologies/noffer/internal/noffer"
)

func respondCmd() *cobra.Command {
	var (
		keyHex string
		relay  string
		offer  string
		bolt11 string
	)

	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Answer offer requests on a relay with a fixed invoice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey(keyHex)
			if err != nil {
				return err
			}

			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
				With().
				Timestamp().
				Logger()

			responder, err := nip69.NewResponder(key, func(ctx context.Context, req *nip69.Request) any {
				if offer != "" && req.Offer != offer {
					return nip69.Response{Error: "Unknown offer", Code: nip69.InvalidOffer}
				}
				return nip69.Response{Bolt11: bolt11}
			}, logger)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			field(w, "pubkey", responder.PublicKey())
			if offer != "" {
				p := &noffer.Pointer{Relay: relay, Offer: offer, PriceType: noffer.PriceFixed}
				pub, _ := hex.DecodeString(responder.PublicKey())
				copy(p.PubKey[:], pub)
				s, err := noffer.Encode(p)
				if err != nil {
					return err
				}
				field(w, "noffer", s)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			conn, err := dialRelay(ctx, relay)
			if err != nil {
				return fmt.Errorf("connect to relay %s: %w", relay, err)
			}
			defer conn.Close()

			if err := responder.Serve(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keyHex, "key", "", "seller private key (hex); defaults to $NOFFER_PRIVATE_KEY or a fresh key")
	cmd.Flags().StringVar(&relay, "relay", "", "relay to listen on")
	cmd.Flags().StringVar(&offer, "offer", "", "only answer this offer identifier")
	cmd.Flags().StringVar(&bolt11, "bolt11", "", "invoice returned to every request")
	cmd.MarkFlagRequired("relay")
	cmd.MarkFlagRequired("bolt11")
	return cmd
}

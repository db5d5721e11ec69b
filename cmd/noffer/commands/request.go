package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/noffer/internal/crypto"
	"github.com/eldtechnologies/noffer/internal/nip69"
)

func requestCmd() *cobra.Command {
	var (
		keyHex  string
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "request <noffer> <sats>",
		Short: "Request an invoice from the seller behind a noffer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}

			key, err := loadKey(keyHex)
			if err != nil {
				return err
			}

			logger := zerolog.Nop()
			if verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
					With().
					Timestamp().
					Logger()
			}

			client := nip69.NewClient(nip69.Config{
				SecretKey: key,
				Timeout:   timeout,
				Dial:      dialRelay,
				Logger:    logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			inv, err := client.RequestInvoice(ctx, args[0], amount)
			if err != nil {
				if pe, ok := nip69.AsProtocolError(err); ok {
					return fmt.Errorf("%s (code %d)", pe.Message, pe.Code)
				}
				return err
			}

			w := cmd.OutOrStdout()
			success.Fprintln(w, "invoice received")
			field(w, "bolt11", inv.Bolt11)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyHex, "key", "", "requester private key (hex); defaults to $NOFFER_PRIVATE_KEY or a fresh key")
	cmd.Flags().DurationVar(&timeout, "timeout", nip69.DefaultTimeout, "how long to wait for the seller")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log the exchange to stderr")
	return cmd
}

// dialRelay opens relay connections for request and respond.
var dialRelay nip69.DialFunc = nip69.DialNostr

// loadKey resolves the private key from the flag, then
// $NOFFER_PRIVATE_KEY, then a freshly generated one.
func loadKey(keyHex string) ([]byte, error) {
	if keyHex == "" {
		keyHex = os.Getenv("NOFFER_PRIVATE_KEY")
	}
	if keyHex == "" {
		var err error
		if keyHex, err = crypto.GeneratePrivateKey(); err != nil {
			return nil, err
		}
	}
	return crypto.ParsePrivateKey(keyHex)
}

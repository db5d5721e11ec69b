package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/noffer/clients/go/lnurl"
)

func payCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pay <user@domain> <sats>",
		Short: "Fetch an invoice for a lightning address served by a noffer bridge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sats, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || sats <= 0 {
				return fmt.Errorf("invalid amount %q", args[1])
			}

			client, user, err := lnurl.ForAddress(args[0])
			if err != nil {
				return err
			}
			if server != "" {
				client = lnurl.NewClient(server)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			pr, err := client.GetPayRequest(ctx, user)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			field(w, "offer", pr.NIP69)

			resp, err := client.Callback(ctx, pr, sats*1000)
			if err != nil {
				return err
			}
			success.Fprintln(w, "invoice received")
			field(w, "bolt11", resp.PR)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "bridge base URL, overrides the address domain")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Second, "overall request timeout")
	return cmd
}

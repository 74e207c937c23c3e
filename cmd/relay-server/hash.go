package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	internaljwt "canvas-relay/internal/jwt"

	"github.com/spf13/cobra"
)

// newHashSecretCmd prints a bcrypt hash of the shared secret for use as
// RELAY_SECRET. The secret comes from the first argument or, when absent,
// the first line of stdin.
func newHashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret [secret]",
		Short: "Print a bcrypt hash of the shared secret for RELAY_SECRET",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read secret: %w", err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if secret == "" {
				return errors.New("secret is empty")
			}

			hashed, err := internaljwt.HashSecret(secret)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return err
		},
	}
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medinor/dashboard/model"
)

func newLoginCmd(global *globalOptions) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a backend token",
		Long: "Signs in against the backend and prints the token. Export it as\n" +
			"MEDINOR_TOKEN for the other commands.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("MEDINOR_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return model.NewBadRequestError("no password given")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			client, _, logger, err := global.client(false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			res, err := client.Login(cmd.Context(), strings.TrimSpace(username), password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Backend username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (default $MEDINOR_PASSWORD, then prompt)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

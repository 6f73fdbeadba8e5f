package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bassamadnan/tdraft/config"
	"github.com/bassamadnan/tdraft/credential"
	"github.com/bassamadnan/tdraft/gmail"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var secretNames = []string{credential.OpenAIKey, credential.IMAPPassword}

func newAuthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access and save the OAuth token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(*configPath, nil)
			if err != nil {
				return err
			}
			if err := gmail.Authorize(context.Background(), settings.Gmail.CredentialsFile, settings.Gmail.TokenFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", settings.Gmail.TokenFile)
			return nil
		},
	}
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the system keyring",
	}

	set := &cobra.Command{
		Use:       "set <name>",
		Short:     "Store a secret (" + strings.Join(secretNames, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: secretNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := checkSecretName(name); err != nil {
				return err
			}
			value, err := readSecret(cmd, name)
			if err != nil {
				return err
			}
			if err := credential.Set(name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", name)
			return nil
		},
	}

	del := &cobra.Command{
		Use:       "delete <name>",
		Short:     "Remove a secret from the keyring",
		Args:      cobra.ExactArgs(1),
		ValidArgs: secretNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkSecretName(args[0]); err != nil {
				return err
			}
			if err := credential.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}

func checkSecretName(name string) error {
	for _, n := range secretNames {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("unknown secret %q (want one of %s)", name, strings.Join(secretNames, ", "))
}

// readSecret prompts twice without echo and requires both entries to match.
func readSecret(cmd *cobra.Command, name string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("secret set needs an interactive terminal")
	}
	out := cmd.ErrOrStderr()

	fmt.Fprintf(out, "%s: ", name)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(out, "Confirm %s: ", name)
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", errors.New("the supplied values do not match")
	}
	value := strings.TrimSpace(string(first))
	if value == "" {
		return "", errors.New("empty value")
	}
	return value, nil
}

func newFilterCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Manage senders and subjects that never get a draft",
	}

	open := func() (*config.Manager, error) {
		settings, err := config.Load(*configPath, nil)
		if err != nil {
			return nil, err
		}
		return config.NewManager(settings.FiltersPath)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show the current skip rules",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := open()
				if err != nil {
					return err
				}
				f := m.GetFilters()
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Ignored senders:")
				for _, s := range f.IgnoreSenders {
					fmt.Fprintf(out, "  %s\n", s)
				}
				fmt.Fprintln(out, "Ignored subject keywords:")
				for _, k := range f.IgnoreKeywordsInSubject {
					fmt.Fprintf(out, "  %s\n", k)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "ignore-sender <address>",
			Short: "Skip messages whose From header contains address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := open()
				if err != nil {
					return err
				}
				return m.AddIgnoreSender(args[0])
			},
		},
		&cobra.Command{
			Use:   "ignore-subject <keyword>",
			Short: "Skip messages whose subject contains keyword",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := open()
				if err != nil {
					return err
				}
				return m.AddIgnoreKeywordInSubject(args[0])
			},
		},
	)
	return cmd
}

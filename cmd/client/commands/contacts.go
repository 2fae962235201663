package commands

import (
	"fmt"
	"strings"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"

	"github.com/spf13/cobra"
)

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the address book",
	}
	cmd.AddCommand(contactsAddCmd(), contactsListCmd(), contactsRemoveCmd())
	return cmd
}

func contactsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <nickname> <public-key>",
		Short: "Add a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pk, err := pki.PublicKeyFromHex(args[1])
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			book, err := store.LoadAddressBook(ctx)
			if err != nil {
				return err
			}
			if err := book.AddContact(args[0], pk); err != nil {
				return err
			}
			c := model.Contact{Nickname: strings.TrimSpace(args[0]), PublicKey: pk}
			if err := store.PutContact(ctx, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", c.Nickname)
			return nil
		},
	}
}

func contactsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			book, err := store.LoadAddressBook(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range book.Contacts() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Nickname, c.PublicKey)
			}
			return nil
		},
	}
}

func contactsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <nickname>",
		Short: "Remove a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			book, err := store.LoadAddressBook(ctx)
			if err != nil {
				return err
			}
			if err := book.Remove(args[0]); err != nil {
				return err
			}
			return store.DeleteContact(ctx, args[0])
		},
	}
}

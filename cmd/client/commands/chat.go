package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"
	"keychat/internal/service/app"
	"keychat/internal/utils/log"

	"github.com/spf13/cobra"
)

func chatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Inspect saved chats",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List chats",
		Args:  cobra.NoArgs,
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
			chats, err := store.LoadChats(ctx)
			if err != nil {
				return err
			}
			for _, c := range chats.All() {
				names := make([]string, 0, len(c.Peers()))
				for _, pk := range c.Peers() {
					names = append(names, book.DisplayName(pk))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.ID(), strings.Join(names, ", "))
			}
			return nil
		},
	})
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <nickname>...",
		Short: "Open a chat window with one or more contacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := loadSecret()
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			book, err := store.LoadAddressBook(ctx)
			if err != nil {
				return err
			}
			peers := make([]pki.PublicKey, 0, len(args))
			for _, who := range args {
				pk, err := resolve(book, who)
				if err != nil {
					return err
				}
				peers = append(peers, pk)
			}
			chat, err := model.NewChat(peers...)
			if err != nil {
				return err
			}
			if err := store.PutChat(ctx, chat); err != nil {
				return err
			}

			// the terminal belongs to the UI from here on
			if err := log.ToFile(cfg.LocalDB + ".log"); err != nil {
				return err
			}

			client, err := dial(ctx, secret)
			if err != nil {
				return err
			}
			defer client.Close()

			return app.NewApp(client, book, chat).Run(ctx)
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <nickname> <text>...",
		Short: "Send one message and exit",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			secret, err := loadSecret()
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
			to, err := resolve(book, args[0])
			if err != nil {
				return err
			}

			client, err := dial(ctx, secret)
			if err != nil {
				return err
			}
			defer client.Close()

			return client.Send(ctx, to, strings.Join(args[1:], " "))
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <nickname>",
		Short: "Ask the relay whether a contact has been seen and is online",
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
			pk, err := resolve(book, args[0])
			if err != nil {
				return err
			}

			st, err := app.PeerStatus(ctx, cfg.ServerURL, pk)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if st == nil {
				fmt.Fprintf(out, "%s has never connected\n", book.DisplayName(pk))
				return nil
			}
			fmt.Fprintf(out, "%s online=%t first_seen=%s last_seen=%s\n",
				book.DisplayName(pk), st.Online, st.FirstSeen.Format("2006-01-02 15:04:05"), st.LastSeen.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

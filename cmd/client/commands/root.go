// Package commands is the keychat client command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"keychat/internal/config"
	"keychat/internal/cryptographic/pki"
	"keychat/internal/model"
	"keychat/internal/protocol/envelope"
	"keychat/internal/repository/local"
	"keychat/internal/service/app"
	"keychat/internal/utils/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const envSecretKey = "KEYCHAT_SECRET_KEY"

var (
	configPath string
	secretHex  string
	serverURL  string
	localDB    string
	encrypt    bool
	dev        bool

	cfg *config.Config
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "keychat",
		Short:        "Chat with peers identified by secp256k1 public keys",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(configPath)
			var cfgErr error
			cfg, cfgErr = config.Load(path)
			if cmd.Flags().Changed("server") {
				cfg.ServerURL = serverURL
			}
			if cmd.Flags().Changed("db") {
				cfg.LocalDB = localDB
			}

			log.Init(dev)
			if err := log.SetLevel(cfg.LogLevel); err != nil {
				return err
			}
			if cfgErr != nil {
				log.Warn("config file ignored, using defaults", zap.String("path", path), zap.Error(cfgErr))
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a JSON config file (or $"+config.EnvFile+")")
	root.PersistentFlags().StringVar(&secretHex, "secret-key", "", "hex secret key (or $"+envSecretKey+")")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "relay websocket url")
	root.PersistentFlags().StringVar(&localDB, "db", "", "local contacts database")
	root.PersistentFlags().BoolVar(&encrypt, "encrypt", false, "encrypt content with a key shared with each peer")
	root.PersistentFlags().BoolVar(&dev, "dev", false, "human readable console logs")

	root.AddCommand(
		keygenCmd(),
		pubkeyCmd(),
		contactsCmd(),
		chatsCmd(),
		chatCmd(),
		sendCmd(),
		statusCmd(),
	)
	return root
}

func loadSecret() (*pki.SecretKey, error) {
	h := secretHex
	if h == "" {
		h = os.Getenv(envSecretKey)
	}
	if h == "" {
		return nil, fmt.Errorf("no secret key: pass --secret-key or set %s", envSecretKey)
	}
	return pki.SecretKeyFromHex(h)
}

func openStore() (*local.Store, error) {
	return local.Open(cfg.LocalDB)
}

func cipher() envelope.Cipher {
	if encrypt {
		return envelope.SharedKey{}
	}
	return envelope.Plaintext{}
}

func dial(ctx context.Context, secret *pki.SecretKey) (*app.Client, error) {
	return app.Dial(ctx, secret, app.Options{
		ServerURL:        cfg.ServerURL,
		HandshakeTimeout: cfg.HandshakeTimeout.Std(),
		WriteTimeout:     cfg.WriteTimeout.Std(),
		Cipher:           cipher(),
	})
}

// resolve accepts a nickname from the address book or a raw hex key.
func resolve(book *model.AddressBook, who string) (pki.PublicKey, error) {
	if pk, ok := book.Lookup(who); ok {
		return pk, nil
	}
	pk, err := pki.PublicKeyFromHex(who)
	if err != nil {
		return pki.PublicKey{}, errors.New("unknown contact " + who)
	}
	return pk, nil
}

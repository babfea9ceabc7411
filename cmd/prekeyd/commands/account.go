package commands

import (
	"encoding/base64"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"prekeyd/internal/domain"
	"prekeyd/internal/store"
)

// Registration ids are 14-bit values.
const maxRegistrationID = 16380

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts in the seed file",
	}
	cmd.AddCommand(accountAddCmd())
	return cmd
}

func accountAddCmd() *cobra.Command {
	var (
		seedFile     string
		number       string
		accountID    string
		devices      int
		accessKey    string
		unrestricted bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace an account in the seed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seedFile == "" {
				seedFile = cfg.SeedFile
			}
			if seedFile == "" {
				return errors.New("no seed file: pass --seed or set accounts.seed")
			}
			if password == "" {
				return errors.New("--password is required")
			}
			if devices < 1 {
				return errors.Errorf("--devices must be at least 1, got %d", devices)
			}

			id := uuid.New()
			if accountID != "" {
				var err error
				if id, err = uuid.Parse(accountID); err != nil {
					return errors.Wrapf(err, "--uuid %q", accountID)
				}
			}

			account := store.SeedAccount{
				Account: domain.Account{
					UUID:                           id,
					Number:                         number,
					UnrestrictedUnidentifiedAccess: unrestricted,
					Enabled:                        true,
				},
				Passwords: make(map[domain.DeviceID]string, devices),
			}
			if accessKey != "" {
				raw, err := base64.StdEncoding.DecodeString(accessKey)
				if err != nil {
					return errors.Wrap(err, "--access-key")
				}
				account.UnidentifiedAccessKey = raw
			}
			for i := 1; i <= devices; i++ {
				deviceID := domain.DeviceID(i)
				account.Devices = append(account.Devices, domain.Device{
					ID:             deviceID,
					RegistrationID: 1 + rand.Uint32N(maxRegistrationID),
					Enabled:        true,
				})
				account.Passwords[deviceID] = password
			}

			seed, err := store.LoadSeed(seedFile)
			if err != nil {
				return err
			}
			seed.Upsert(account)
			if err := store.SaveSeed(seedFile, seed); err != nil {
				return err
			}
			log.Infof("Saved account %s to %s", id, seedFile)
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "seed file (default accounts.seed from config)")
	cmd.Flags().StringVar(&number, "number", "", "account number, e.g. +14152222222")
	cmd.Flags().StringVar(&accountID, "uuid", "", "account uuid (default random)")
	cmd.Flags().IntVar(&devices, "devices", 1, "number of devices to create")
	cmd.Flags().StringVar(&accessKey, "access-key", "", "base64 unidentified-access key")
	cmd.Flags().BoolVar(&unrestricted, "unrestricted", false, "allow any unidentified-access token")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}

package commands

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"prekeyd/internal/crypto"
	"prekeyd/internal/services/prekey"
)

// keySecrets is the private half of a genkeys run.
type keySecrets struct {
	IdentityPrivate     string            `json:"identityPrivate"`
	SignedPreKeyID      uint32            `json:"signedPreKeyId"`
	SignedPreKeyPrivate string            `json:"signedPreKeyPrivate"`
	PreKeyPrivates      map[uint32]string `json:"preKeyPrivates"`
}

func genkeysCmd() *cobra.Command {
	var (
		count   int
		startID uint32
		secrets string
	)
	cmd := &cobra.Command{
		Use:   "genkeys",
		Short: "Generate an identity, a signed prekey and one-time prekeys as upload JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := prekey.NewIdentity()
			if err != nil {
				return err
			}
			defer crypto.Wipe(identity.Private[:])

			var opts []prekey.Option
			if startID != 0 {
				opts = append(opts, prekey.WithStartID(startID))
			}
			gen, err := prekey.New(opts...)
			if err != nil {
				return err
			}
			m, err := gen.Generate(identity, count)
			if err != nil {
				return err
			}
			defer m.Wipe()

			if secrets != "" {
				if err := writeSecrets(secrets, identity, m); err != nil {
					return err
				}
				log.Infof("Wrote private keys to %s", secrets)
			}
			log.Infof("Identity fingerprint %s", crypto.Fingerprint(identity.Public[:]))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m.Upload)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 100, "number of one-time prekeys")
	cmd.Flags().Uint32Var(&startID, "start-id", 0, "first key id (default random)")
	cmd.Flags().StringVar(&secrets, "secrets", "", "write private keys to this file")
	return cmd
}

func writeSecrets(path string, identity prekey.Identity, m prekey.Material) error {
	out := keySecrets{
		IdentityPrivate:     crypto.B64(identity.Private[:]),
		SignedPreKeyID:      m.Upload.SignedPreKey.KeyID,
		SignedPreKeyPrivate: crypto.B64(m.SignedPreKeyPrivate[:]),
		PreKeyPrivates:      make(map[uint32]string, len(m.PreKeyPrivates)),
	}
	for id, k := range m.PreKeyPrivates {
		out.PreKeyPrivates[id] = crypto.B64(k[:])
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, b, 0o600), "write %s", path)
}


package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"prekeyd/internal/domain"
	"prekeyd/internal/relay"
	"prekeyd/internal/services/prekey"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func uploadCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload keys produced by genkeys for the --user device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var upload domain.KeyUpload
			if err := json.NewDecoder(r).Decode(&upload); err != nil {
				return errors.Wrap(err, "decode upload")
			}

			ctx, cancel := clientContext(cmd)
			defer cancel()
			if err := newClient().UploadKeys(ctx, upload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s one-time prekeys\n", humanize.Comma(int64(len(upload.PreKeys))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "upload JSON file (default stdin)")
	return cmd
}

func fetchCmd() *cobra.Command {
	var (
		accessKey string
		verify    bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <number|uuid> [device|*]",
		Short: "Fetch a key bundle",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.ParseIdentifier(args[0])
			if err != nil {
				return err
			}
			selector := domain.AllDevices()
			if len(args) == 2 {
				if selector, err = domain.ParseDeviceSelector(args[1]); err != nil {
					return err
				}
			}

			var opts []relay.ClientOption
			if accessKey != "" {
				opts = append(opts, relay.WithAccessKey(accessKey))
			}
			ctx, cancel := clientContext(cmd)
			defer cancel()
			bundle, err := newClient(opts...).FetchBundle(ctx, target, selector)
			if err != nil {
				return err
			}
			if verify {
				if err := prekey.VerifyBundle(bundle); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), bundle)
		},
	}
	cmd.Flags().StringVar(&accessKey, "access-key", "", "base64 unidentified-access key instead of --user")
	cmd.Flags().BoolVar(&verify, "verify", false, "check signed prekey signatures against the identity key")
	return cmd
}

func countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print how many one-time prekeys the --user device has left",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext(cmd)
			defer cancel()
			n, err := newClient().KeyCount(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func signedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signed",
		Short: "Print the current signed prekey of the --user device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext(cmd)
			defer cancel()
			key, err := newClient().SignedPreKey(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), key)
		},
	}
}

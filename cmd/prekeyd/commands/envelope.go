package commands

import (
	"encoding/base64"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"prekeyd/internal/envelope"
)

type envelopeFlags struct {
	key     string
	in      string
	out     string
	encoded bool
}

func (f *envelopeFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.key, "signaling-key", "k", "", "base64 signaling key (52+ bytes)")
	cmd.Flags().StringVarP(&f.in, "in", "i", "", "input file (default stdin)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&f.encoded, "base64", false, "envelope side is base64 text")
	_ = cmd.MarkFlagRequired("signaling-key")
}

func (f *envelopeFlags) read(cmd *cobra.Command) ([]byte, error) {
	var r io.Reader = cmd.InOrStdin()
	if f.in != "" {
		file, err := os.Open(f.in)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}
	b, err := io.ReadAll(r)
	return b, errors.Wrap(err, "read input")
}

func (f *envelopeFlags) write(cmd *cobra.Command, b []byte) error {
	if f.out != "" {
		return os.WriteFile(f.out, b, 0o600)
	}
	_, err := cmd.OutOrStdout().Write(b)
	return err
}

func sealCmd() *cobra.Command {
	var f envelopeFlags
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a payload under a signaling key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := f.read(cmd)
			if err != nil {
				return err
			}
			sealed, err := envelope.Seal(payload, f.key)
			if err != nil {
				return err
			}
			if f.encoded {
				sealed = []byte(base64.StdEncoding.EncodeToString(sealed) + "\n")
			}
			return f.write(cmd, sealed)
		},
	}
	f.bind(cmd)
	return cmd
}

func openCmd() *cobra.Command {
	var f envelopeFlags
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Verify and decrypt a sealed envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sealed, err := f.read(cmd)
			if err != nil {
				return err
			}
			if f.encoded {
				if sealed, err = base64.StdEncoding.DecodeString(strings.TrimSpace(string(sealed))); err != nil {
					return errors.Wrap(err, "decode envelope")
				}
			}
			payload, err := envelope.Open(sealed, f.key)
			if err != nil {
				return err
			}
			return f.write(cmd, payload)
		},
	}
	f.bind(cmd)
	return cmd
}

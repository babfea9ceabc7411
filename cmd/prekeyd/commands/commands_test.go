package commands_test

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"prekeyd/cmd/prekeyd/commands"
	"prekeyd/internal/domain"
	"prekeyd/internal/services/prekey"
	"prekeyd/internal/store"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := commands.NewRootCommand()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func newSignalingKey(t *testing.T) string {
	t.Helper()
	raw := make([]byte, 52)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

// Ensure that seal then open with the same key yields the input.
func TestSealOpen(t *testing.T) {
	key := newSignalingKey(t)

	sealed, err := run(t, "hello envelope", "seal", "-k", key, "--base64")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(sealed))

	opened, err := run(t, sealed, "open", "-k", key, "--base64")
	require.NoError(t, err)
	require.Equal(t, "hello envelope", opened)

	_, err = run(t, sealed, "open", "-k", newSignalingKey(t), "--base64")
	require.Error(t, err)
}

func TestGenkeys(t *testing.T) {
	secrets := filepath.Join(t.TempDir(), "secrets.json")

	out, err := run(t, "", "genkeys", "-n", "5", "--start-id", "10", "--secrets", secrets)
	require.NoError(t, err)

	var upload domain.KeyUpload
	require.NoError(t, json.Unmarshal([]byte(out), &upload))
	require.NotNil(t, upload.IdentityKey)
	require.Len(t, upload.PreKeys, 5)
	require.Equal(t, uint32(11), upload.PreKeys[0].KeyID)
	require.NoError(t, prekey.VerifySignedPreKey(*upload.IdentityKey, *upload.SignedPreKey))

	info, err := os.Stat(secrets)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAccountAdd(t *testing.T) {
	seedFile := filepath.Join(t.TempDir(), "seed.json")
	id := uuid.New()

	out, err := run(t, "", "account", "add",
		"--seed", seedFile,
		"--number", "+14155550100",
		"--uuid", id.String(),
		"--devices", "2",
		"--access-key", base64.StdEncoding.EncodeToString([]byte("1337")),
		"-p", "secret",
	)
	require.NoError(t, err)
	require.Equal(t, id.String(), strings.TrimSpace(out))

	seed, err := store.LoadSeed(seedFile)
	require.NoError(t, err)
	require.Len(t, seed.Accounts, 1)
	account := seed.Accounts[0]
	require.Equal(t, "+14155550100", account.Number)
	require.Len(t, account.Devices, 2)
	require.Equal(t, []byte("1337"), account.UnidentifiedAccessKey)
	require.Equal(t, "secret", account.Passwords[2])

	// Re-adding the same uuid replaces the entry.
	_, err = run(t, "", "account", "add", "--seed", seedFile, "--number", "+14155550101", "--uuid", id.String(), "-p", "x")
	require.NoError(t, err)
	seed, err = store.LoadSeed(seedFile)
	require.NoError(t, err)
	require.Len(t, seed.Accounts, 1)
	require.Equal(t, "+14155550101", seed.Accounts[0].Number)
}

func TestAccountAddRequiresPassword(t *testing.T) {
	seedFile := filepath.Join(t.TempDir(), "seed.json")
	_, err := run(t, "", "account", "add", "--seed", seedFile, "--number", "+14155550100")
	require.Error(t, err)
}

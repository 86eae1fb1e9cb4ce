package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skyline93/bundlecache/internal/crypto"
	"github.com/skyline93/bundlecache/internal/fs"
)

var cmdEncrypt = &cobra.Command{
	Use:   "encrypt [flags] SOURCE TARGET",
	Short: "Encrypt a bundle file",
	Long: `
The "encrypt" command encrypts SOURCE with the key of the configured key file
and writes it to TARGET. The size and CRC printed are the values a manifest
records for the encrypted bundle. With --create-key, a new key file is written
first.
`,
	Args:              cobra.ExactArgs(2),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEncrypt(encryptOptions, globalOptions, args[0], args[1])
	},
}

// EncryptOptions bundles all options for the encrypt command.
type EncryptOptions struct {
	CreateKey bool
}

var encryptOptions EncryptOptions

func init() {
	cmdRoot.AddCommand(cmdEncrypt)

	f := cmdEncrypt.Flags()
	f.BoolVar(&encryptOptions.CreateKey, "create-key", false, "create the key file with a new random key")
}

func runEncrypt(opts EncryptOptions, gopts GlobalOptions, src, dst string) error {
	keyFile := gopts.cfg.KeyFile
	if keyFile == "" {
		return errors.New("no key file configured, set KeyFile")
	}

	fsys := fs.Local()

	var (
		key *crypto.Key
		err error
	)
	if opts.CreateKey {
		if fs.Exists(fsys, keyFile) {
			return errors.Errorf("key file %v already exists", keyFile)
		}
		if gopts.Password == "" {
			return errors.New("creating a key file needs a password")
		}
		key, err = crypto.CreateKey(fsys, keyFile, gopts.Password, nil)
	} else {
		key, err = openKey(gopts)
	}
	if err != nil {
		return err
	}

	size, crc, err := crypto.EncryptFile(fsys, key, src, dst)
	if err != nil {
		return err
	}

	fmt.Printf("%v: %s (%d bytes), crc %v\n", dst, humanize.Bytes(uint64(size)), size, crc)
	return nil
}

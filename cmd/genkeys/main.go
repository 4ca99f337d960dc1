package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/queuedesk/internal/service/auth/credential"
)

const defaultKeyBits = 3072

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating keys: %v\n", err)
		os.Exit(1)
	}
}

// Write RSA key pair used to sign access tokens
// Existing files are never overwritten
func run(args []string) error {
	fs := pflag.NewFlagSet("genkeys", pflag.ContinueOnError)
	dir := fs.StringP("out", "o", ".", "Directory to write 'jwt_private.pem' and 'jwt_public.pem' to")
	bits := fs.IntP("bits", "b", defaultKeyBits, "RSA key size")

	if err := fs.Parse(args); err != nil {
		return err
	}

	private, public, err := credential.GenerateKeys(*bits)
	if err != nil {
		return err
	}

	privatePath := filepath.Join(*dir, "jwt_private.pem")
	publicPath := filepath.Join(*dir, "jwt_public.pem")

	if err := writeNew(privatePath, private, 0o600); err != nil {
		return err
	}
	if err := writeNew(publicPath, public, 0o644); err != nil {
		return err
	}

	fmt.Println(privatePath)
	fmt.Println(publicPath)
	return nil
}

func writeNew(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

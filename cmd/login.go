package cmd

import (
	"context"
	"fmt"

	"happy/api"
	"happy/credentials"
	"happy/encryption"
	"happy/logging"
)

// LoginCmd authenticates against the sync server
type LoginCmd struct {
	Secret string `help:"Restore from an existing secret key (base64)" short:"s"`
}

// Run executes the login command
func (l *LoginCmd) Run(cli *CLI) error {
	ctx := context.Background()

	var secret []byte
	var err error
	if l.Secret != "" {
		secret, err = encryption.DecodeKey(l.Secret)
		if err != nil {
			return fmt.Errorf("invalid secret key: %w", err)
		}
	} else {
		secret, err = encryption.NewSecret()
		if err != nil {
			return err
		}
		fmt.Printf("Generated new secret key: %s\n", encryption.EncodeKey(secret))
		fmt.Println("Store it safely: it is the only way to read your sessions on another device.")
	}

	token, err := api.Authenticate(ctx, cli.ServerURL, secret)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	creds := &credentials.Credentials{Token: token, Secret: secret}
	if err := credentials.Set(creds); err != nil {
		return err
	}

	logging.Logger.Info("Logged in")
	fmt.Println("Logged in.")
	return nil
}

// LogoutCmd removes stored credentials
type LogoutCmd struct{}

// Run executes the logout command
func (l *LogoutCmd) Run(cli *CLI) error {
	if err := credentials.Remove(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

// PairCmd approves pairing for a new device that displayed its public key
type PairCmd struct {
	PublicKey string `arg:"" help:"Public key shown by the device being paired (base64)"`
}

// Run executes the pair command
func (p *PairCmd) Run(cli *CLI) error {
	ctx := context.Background()

	rt, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.engine.ApprovePairing(ctx, p.PublicKey); err != nil {
		return fmt.Errorf("pairing failed: %w", err)
	}
	fmt.Println("Device paired.")
	return nil
}

package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/solar-proxy/internal/app"
	"github.com/florianilch/solar-proxy/internal/keystore"
)

// authCommand returns the 'auth' subcommand for managing the default API key.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the default Upstage API key",
		Commands: []*cli.Command{
			authLoginCommand(),
			authLogoutCommand(),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Save the default Upstage API key to the configured storage",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "read the key from standard input instead of prompting",
			},
		},
		Action: authLoginAction,
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Remove the default Upstage API key from the configured storage",
		Action: authLogoutAction,
	}
}

// writableKeyStore loads the config and returns its key store, refusing read-only env storage.
func writableKeyStore(cmd *cli.Command) (keystore.Store, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Auth.Storage == app.KeyStorageTypeEnv {
		return nil, errors.New("cannot modify env storage (read-only). Configure file or keyring storage")
	}

	store, err := cfg.NewKeyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create key store: %w", err)
	}
	return store, nil
}

// authLoginAction stores an API key read from the terminal or stdin.
func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	store, err := writableKeyStore(cmd)
	if err != nil {
		return err
	}

	var key string
	if cmd.Bool("stdin") {
		key, err = readLine(os.Stdin)
	} else {
		fmt.Println("=== Upstage API Key ===")
		fmt.Println("Create a key at https://console.upstage.ai/api-keys")
		key, err = readSecureInput(ctx, "\nEnter API key: ")
	}
	if err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	if err := store.Write(ctx, key); err != nil {
		return fmt.Errorf("failed to write API key: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Login Successful ===")
	fmt.Println("API key saved to configured storage")

	return nil
}

// authLogoutAction clears the stored API key.
func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	store, err := writableKeyStore(cmd)
	if err != nil {
		return err
	}

	// Clear key via empty string write to maintain storage abstraction
	if err := store.Write(ctx, ""); err != nil {
		return fmt.Errorf("failed to clear API key: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Logout Successful ===")
	fmt.Println("API key cleared from configured storage")

	return nil
}

// readLine reads the first line of r.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return line, nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, prompt string) (string, error) {
	fmt.Print(prompt)
	defer fmt.Println()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}

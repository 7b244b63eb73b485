package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// promptPassphrase reads the backup passphrase from the terminal without echo.
func promptPassphrase() (string, error) {
	return readPassword("Backup passphrase: ")
}

// readNewPassphrase asks twice and requires both entries to match.
func readNewPassphrase() (string, error) {
	pass, err := readPassword("New passphrase: ")
	if err != nil {
		return "", err
	}
	if pass == "" {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	again, err := readPassword("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if pass != again {
		return "", fmt.Errorf("passphrases do not match")
	}
	return pass, nil
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("a terminal is required to enter the passphrase")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

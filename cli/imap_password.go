// ABOUTME: IMAP password management command
// ABOUTME: Stores or removes the mailbox app password in the OS keyring
package cli

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/harperreed/leadsync/config"
	"github.com/harperreed/leadsync/secrets"
)

// IMAPPasswordCommand handles 'imap-password set' and 'imap-password delete'.
func IMAPPasswordCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("imap-password", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("usage: leadsync imap-password <set|delete>")
	}

	imap := cfg.Mail.IMAP
	if imap.Host == "" || imap.Username == "" {
		return errors.New("mail.imap.host and mail.imap.username must be configured first")
	}
	account := secrets.IMAPKeyringAccount(imap.Username, imap.Host)

	switch fs.Arg(0) {
	case "set":
		password, err := readPassword(os.Stdin, fmt.Sprintf("Password for %s@%s: ", imap.Username, imap.Host))
		if err != nil {
			return err
		}
		if err := secrets.SetIMAPPassword(account, password); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
		fmt.Printf("✓ Password stored in keyring for %s\n", account)
	case "delete":
		if err := secrets.DeleteIMAPPassword(account); err != nil {
			return fmt.Errorf("failed to delete password: %w", err)
		}
		fmt.Printf("✓ Password removed for %s\n", account)
	default:
		return fmt.Errorf("unknown imap-password command: %s", fs.Arg(0))
	}
	return nil
}

// readPassword prompts without echo on a terminal, or reads one line from a pipe.
func readPassword(in *os.File, prompt string) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Print(prompt)
		b, err := term.ReadPassword(fd)
		fmt.Println() // New line after hidden input
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return nonEmpty(string(b))
	}
	return readPasswordLine(in)
}

func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return nonEmpty(strings.TrimRight(line, "\r\n"))
}

func nonEmpty(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}

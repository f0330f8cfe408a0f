// ABOUTME: Stores the IMAP app password in the OS keychain
// ABOUTME: Falls back to the LEADSYNC_IMAP_PASSWORD environment variable for headless hosts
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups leadsync's entries in the OS keychain.
const KeyringService = "leadsync"

// PasswordEnv is consulted when the keychain has no entry.
const PasswordEnv = "LEADSYNC_IMAP_PASSWORD"

// ErrPasswordNotFound means neither the keychain nor the environment had a password.
var ErrPasswordNotFound = errors.New("IMAP password not found (run 'leadsync imap-password' or set " + PasswordEnv + ")")

// IMAPKeyringAccount names the keychain entry for a mailbox login.
func IMAPKeyringAccount(username, host string) string {
	return fmt.Sprintf("leadsync:imap:%s@%s", username, host)
}

func GetIMAPPassword(account string) (string, error) {
	if strings.TrimSpace(account) != "" {
		pw, err := keyring.Get(KeyringService, account)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}

	if pw := os.Getenv(PasswordEnv); strings.TrimSpace(pw) != "" {
		return pw, nil
	}

	return "", ErrPasswordNotFound
}

func SetIMAPPassword(account, password string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	if err := keyring.Set(KeyringService, account, password); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	return nil
}

func DeleteIMAPPassword(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	err := keyring.Delete(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// promptToken asks for the API token. On a real terminal the input is
// hidden; when stdin is piped (tests, scripts) a plain line read is
// used instead.
func promptToken(o *IO, in io.Reader, userID string) (string, error) {
	label := "API token"
	if userID != "" {
		label = fmt.Sprintf("API token for %s", userID)
	}

	if in == nil {
		return "", errors.New("no input available to read the token from")
	}

	if f, ok := in.(*os.File); ok && f == os.Stdin {
		l := liner.NewLiner()
		defer l.Close()

		l.SetCtrlCAborts(true)

		token, err := l.PasswordPrompt(label + ": ")
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}

		return strings.TrimSpace(token), nil
	}

	o.ErrPrintf("%s: ", label)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading token: %w", err)
	}

	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question and defaults to no.
func confirm(o *IO, in io.Reader, prompt string) bool {
	if in == nil {
		return false
	}

	o.Printf("%s [y/N]: ", prompt)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

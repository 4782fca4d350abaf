package cli

import (
	"bufio"
	"context"
	"os"

	"github.com/webissues/webissues-go/internal/session"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// terminalAuth asks for credentials on the terminal. An empty login cancels
// authentication; an empty new password declines a forced rotation.
type terminalAuth struct {
	reader *bufio.Reader
}

func (t *terminalAuth) Credentials(context.Context) (*session.Credentials, error) {
	login, err := getSimpleText(t.reader, "Enter login (empty to cancel)", os.Stdout)
	if err != nil {
		return nil, err
	}
	if login == "" {
		return nil, nil
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return nil, err
	}
	return &session.Credentials{Login: login, Password: password}, nil
}

func (t *terminalAuth) NewPassword(context.Context) (string, error) {
	return getPassword("The server requires a new password, enter one (empty to decline)", os.Stdout)
}

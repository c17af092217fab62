// ABOUTME: Matrix client construction from an access token or a password
// ABOUTME: Password logins store the returned credentials on the client

package matrix

import (
	"context"
	"errors"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// deviceName is shown in the user's session list.
const deviceName = "coven-bot"

// Credentials locate and authenticate the bot account. AccessToken wins
// over Username/Password.
type Credentials struct {
	Homeserver  string
	UserID      string
	AccessToken string
	Username    string
	Password    string
}

// Connect returns a client authenticated with creds.
func Connect(ctx context.Context, creds Credentials) (*mautrix.Client, error) {
	if creds.Homeserver == "" {
		return nil, errors.New("matrix homeserver is required")
	}

	if creds.AccessToken != "" {
		client, err := mautrix.NewClient(creds.Homeserver, id.UserID(creds.UserID), creds.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("creating matrix client: %w", err)
		}
		// Encryption needs the device the token belongs to.
		whoami, err := client.Whoami(ctx)
		if err != nil {
			return nil, fmt.Errorf("matrix whoami: %w", err)
		}
		client.DeviceID = whoami.DeviceID
		return client, nil
	}

	if creds.Username == "" || creds.Password == "" {
		return nil, errors.New("matrix access token or username and password are required")
	}
	client, err := mautrix.NewClient(creds.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	_, err = client.Login(ctx, &mautrix.ReqLogin{
		Type:                     mautrix.AuthTypePassword,
		Identifier:               mautrix.UserIdentifier{Type: mautrix.IdentifierTypeUser, User: creds.Username},
		Password:                 creds.Password,
		InitialDeviceDisplayName: deviceName,
		StoreCredentials:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("matrix login: %w", err)
	}
	return client, nil
}

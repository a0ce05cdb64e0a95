/*
Package authsdk is a Go client for the FinSight authentication, billing and
demo endpoints.

# SDKClient vs Session

SDKClient calls the public endpoints (register, login, refresh, demo access,
health). Logging in returns a Session, which carries the token pair and
refreshes the access token shortly before it expires:

	client := authsdk.NewSDKClient("https://api.finsight.example")

	session, err := client.Login(ctx, authsdk.LoginRequest{
		Email:    "owner@acme.example",
		Password: "correct horse battery staple",
	})
	if err != nil {
		return err
	}

	me, err := session.Me(ctx)
	ent, err := session.Entitlement(ctx)

Refresh tokens rotate on every use. A Session serialises its refreshes, so
sharing one Session between goroutines never presents the same refresh token
twice. Two Sessions built from the same tokens will trip reuse detection and
both lose access.

# Errors

Non-2xx responses are returned as *APIError. Use errors.As to inspect the
code, or compare against the predefined values with errors.Is:

	if errors.Is(err, authsdk.ErrFeatureNotEntitled) {
		var apiErr *authsdk.APIError
		errors.As(err, &apiErr)
		fmt.Println("upgrade to", apiErr.RequiredTier)
	}

The server uses the same APIError type to write its responses.
*/
package authsdk

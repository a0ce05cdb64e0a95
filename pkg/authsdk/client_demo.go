package authsdk

import (
	"context"
	"net/http"
)

func (c *SDKClient) RequestDemoAccess(ctx context.Context, email string) (*DemoAccessResponse, error) {
	var out DemoAccessResponse
	if err := c.postJSON(ctx, "/v1/demo/request-access", DemoAccessRequest{Email: email}, &out, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyDemo redeems a demo link token. Tokens are single use.
func (c *SDKClient) VerifyDemo(ctx context.Context, token string) (*DemoVerifyResponse, error) {
	var out DemoVerifyResponse
	if err := c.postJSON(ctx, "/v1/demo/verify", DemoVerifyRequest{Token: token}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

package authsdk

import "context"

// ListPlans returns the public plan catalogue. It needs no session.
func (c *SDKClient) ListPlans(ctx context.Context) (*PlansResponse, error) {
	var out PlansResponse
	if err := c.getJSON(ctx, "/v1/billing/plans", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

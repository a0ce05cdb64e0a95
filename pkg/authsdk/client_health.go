package authsdk

import "context"

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/livez", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReadiness checks if the service can reach its store.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/readyz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for HTTP requests with retry logic.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Do performs a request and returns the response body of a 2xx reply.
	// body is JSON-encoded when non-nil. Non-2xx replies yield *helpers.APIError.
	Do(ctx context.Context, method, url string, body interface{}, headers map[string]string) ([]byte, error)
}

package identityapi

import (
	"io"
	"net/http"
)

// bearerTransport authenticates requests with the cached token. A 401 on a
// token that was not fetched by this request invalidates it and the request
// is retried once.
type bearerTransport struct {
	tokens *TokenCache
	base   http.RoundTripper
}

func newBearerTransport(tokens *TokenCache, base http.RoundTripper) *bearerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{tokens: tokens, base: base}
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody != nil {
		// Every attempt sends a copy from GetBody.
		defer req.Body.Close()
	}
	for attempt := 0; ; attempt++ {
		token, fresh, err := t.tokens.Token(req.Context())
		if err != nil {
			return nil, err
		}

		out := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			out.Body = body
		}
		out.Header.Set("Authorization", "Bearer "+token)

		resp, err := t.base.RoundTrip(out)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}

		t.tokens.Invalidate(token)
		if fresh || attempt > 0 || (req.Body != nil && req.GetBody == nil) {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}

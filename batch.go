package tangguh

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchRequests issues every request through the full pipeline and waits for
// the set to settle together. Semantics are fail-fast: the first failure
// cancels the remaining requests and becomes the aggregate error; on success
// the responses are returned in request order.
func (c *Client) BatchRequests(ctx context.Context, reqs []*Request) ([]*Response, error) {
	out := make([]*Response, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			resp, err := c.do(gctx, req)
			if err != nil {
				return err
			}
			out[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

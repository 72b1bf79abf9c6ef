package tangguh

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// TotalPagesHeader is the response header consulted for the page count.
const TotalPagesHeader = "X-Total-Pages"

// pageEnvelope is the object-shaped page body fallback when the server does
// not advertise the page count in a header.
type pageEnvelope struct {
	Items      []json.RawMessage `json:"items"`
	TotalPages int               `json:"totalPages"`
}

// FetchAllPages issues sequential requests starting at page 1, incrementing
// pageKey until the page number exceeds the server-reported total, and
// returns the items concatenated in page order. The total comes from the
// X-Total-Pages header, or a totalPages field of an object-shaped body; a
// bare array body with no header yields a single page. Every page fetch runs
// through the full breaker/retry/token pipeline.
func (c *Client) FetchAllPages(ctx context.Context, target string, params url.Values, pageKey, limitKey string, pageSize int) ([]json.RawMessage, error) {
	var items []json.RawMessage

	for page := 1; ; page++ {
		query := url.Values{}
		for k, vs := range params {
			query[k] = vs
		}
		query.Set(pageKey, strconv.Itoa(page))
		query.Set(limitKey, strconv.Itoa(pageSize))

		resp, err := c.do(ctx, &Request{
			Method: http.MethodGet,
			Target: target,
			Query:  query,
		})
		if err != nil {
			return nil, err
		}

		pageItems, totalPages, err := parsePage(resp)
		if err != nil {
			return nil, err
		}
		items = append(items, pageItems...)

		if page >= totalPages {
			return items, nil
		}
	}
}

func parsePage(resp *Response) (items []json.RawMessage, totalPages int, err error) {
	if h := resp.Header.Get(TotalPagesHeader); h != "" {
		if n, convErr := strconv.Atoi(h); convErr == nil {
			totalPages = n
		}
	}

	var arr []json.RawMessage
	if jsonErr := json.Unmarshal(resp.Body, &arr); jsonErr == nil {
		if totalPages <= 0 {
			totalPages = 1
		}
		return arr, totalPages, nil
	}

	var envelope pageEnvelope
	if jsonErr := json.Unmarshal(resp.Body, &envelope); jsonErr != nil {
		return nil, 0, &Error{Type: ErrorTypeValidation, Message: "decode page body", Cause: jsonErr}
	}
	if totalPages <= 0 {
		totalPages = envelope.TotalPages
	}
	if totalPages <= 0 {
		totalPages = 1
	}
	return envelope.Items, totalPages, nil
}

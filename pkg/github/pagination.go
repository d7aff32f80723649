// Lazy page iteration over paginated GitHub endpoints
// Follows RFC 5988 Link headers until no rel="next" remains
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PageIterator fetches one page per Next call. Not safe for concurrent use.
type PageIterator[T any] struct {
	client  *Client
	nextURL string
	decode  func(io.Reader) ([]T, error)
}

// newPageIterator starts iteration at path. decode extracts the page's
// items from the response body, which for the Actions endpoints is an
// envelope object rather than a bare array.
func newPageIterator[T any](client *Client, path string, decode func(io.Reader) ([]T, error)) *PageIterator[T] {
	return &PageIterator[T]{
		client:  client,
		nextURL: client.baseURL + path,
		decode:  decode,
	}
}

// Next returns the next page of items, or nil, nil once all pages are consumed.
func (iterator *PageIterator[T]) Next(ctx context.Context) ([]T, error) {
	if iterator.nextURL == "" {
		return nil, nil
	}

	response, err := iterator.client.doRaw(ctx, iterator.nextURL)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close() //nolint:errcheck // read-only body

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
		return nil, parseAPIError(response.StatusCode, body)
	}

	items, err := iterator.decode(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("github: decoding page: %w", err)
	}

	iterator.nextURL = parseLinkNext(response.Header.Get("Link"))
	if items == nil {
		// Keep nil reserved for "no more pages".
		items = []T{}
	}
	return items, nil
}

// Collect drains the iterator and returns every item in page order.
func (iterator *PageIterator[T]) Collect(ctx context.Context) ([]T, error) {
	all := []T{}
	for {
		items, err := iterator.Next(ctx)
		if err != nil {
			return all, err
		}
		if items == nil {
			return all, nil
		}
		all = append(all, items...)
	}
}

// parseLinkNext extracts the rel="next" URL from a Link header, or "".
//
// Format: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkNext(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		urlPart, relPart, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok {
			continue
		}
		if !strings.Contains(relPart, `rel="next"`) {
			continue
		}
		urlPart = strings.TrimSpace(urlPart)
		if strings.HasPrefix(urlPart, "<") && strings.HasSuffix(urlPart, ">") {
			return urlPart[1 : len(urlPart)-1]
		}
	}
	return ""
}

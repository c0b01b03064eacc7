package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sort"
)

// ObjectKeyField is the reserved field under which map-shaped payloads
// carry each item's object key (the upstream addresses some entities by
// the key of the object map rather than by a field).
const ObjectKeyField = "_object_id"

// FetchOptions controls one paginated fetch.
type FetchOptions struct {
	// PayloadKey is the response key the page payload lives under.
	PayloadKey string

	// IdentityFields derive each record's dedup identity; see Identity.
	IdentityFields []string

	// PageSize is the per_page value; DefaultPageSize when zero.
	PageSize int

	// SingleShot endpoints return all data on page zero.
	SingleShot bool

	// FlattenNested JSON-encodes nested values before records are
	// returned, for entities stored in flat columns.
	FlattenNested bool

	// KeepObjectKey injects the object-map key of each item under
	// ObjectKeyField for map-shaped payloads.
	KeepObjectKey bool
}

// FetchAll walks the page sequence of one endpoint and returns the
// deduplicated record batch. An error means the fetch is incomplete;
// callers must not treat a failed fetch as "nothing exists".
func (c *Client) FetchAll(ctx context.Context, endpoint string, filter map[string]any, opts FetchOptions) ([]Record, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	if !c.Authenticated() {
		c.logger.Warn("no credentials held, authenticating first", "endpoint", endpoint)
		if err := c.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	}

	var (
		all        []Record
		seen       = make(map[string]struct{})
		duplicates int
	)

	addUnique := func(items []Record) int {
		added := 0
		for _, item := range items {
			if opts.FlattenNested {
				item = FlattenNested(item)
			}
			id := Identity(item, opts.IdentityFields)
			if _, ok := seen[id]; ok {
				duplicates++
				continue
			}
			seen[id] = struct{}{}
			all = append(all, item)
			added++
		}
		return added
	}

	c.logger.Info("starting fetch", "endpoint", endpoint, "page_size", opts.PageSize)

	items, err := c.fetchPage(ctx, endpoint, filter, opts, 0)
	if err != nil {
		return nil, err
	}
	added := addUnique(items)
	c.logger.Debug("fetched page", "endpoint", endpoint, "page", 0, "items", len(items), "added", added)

	if opts.SingleShot {
		c.logger.Info("fetch complete", "endpoint", endpoint, "records", len(all), "duplicates", duplicates)
		return all, nil
	}

	emptyPages := 0
	for page := 1; page < c.pageLimit; page++ {
		items, err := c.fetchPage(ctx, endpoint, filter, opts, page)
		if err != nil {
			return nil, err
		}

		if len(items) == 0 {
			emptyPages++
			c.logger.Debug("empty page", "endpoint", endpoint, "page", page, "consecutive", emptyPages)
			if emptyPages >= maxEmptyPages {
				break
			}
			continue
		}
		emptyPages = 0

		added := addUnique(items)
		c.logger.Debug("fetched page", "endpoint", endpoint, "page", page, "items", len(items), "added", added)

		if added == 0 {
			// Every item on the page duplicated an identity we already
			// hold; the upstream has started repeating itself.
			break
		}
		if len(items) < opts.PageSize {
			break
		}
	}

	c.logger.Info("fetch complete",
		"endpoint", endpoint,
		"records", len(all),
		"duplicates", duplicates,
	)
	return all, nil
}

// fetchPage requests one page, recovering exactly once from an expired
// credential.
func (c *Client) fetchPage(ctx context.Context, endpoint string, filter map[string]any, opts FetchOptions, page int) ([]Record, error) {
	body := make(map[string]any, len(filter)+1)
	maps.Copy(body, filter)
	body["pagination"] = map[string]any{
		"per_page": opts.PageSize,
		"page":     page,
	}

	var envelope map[string]json.RawMessage
	err := c.postJSON(ctx, endpoint, body, &envelope)
	if isUnauthorized(err) {
		c.logger.Info("credential rejected, re-authenticating", "endpoint", endpoint, "page", page)
		if authErr := c.Authenticate(ctx); authErr != nil {
			return nil, fmt.Errorf("re-authenticate: %w", authErr)
		}
		err = c.postJSON(ctx, endpoint, body, &envelope)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", endpoint, page, err)
	}

	raw, ok := envelope[opts.PayloadKey]
	if !ok {
		return nil, fmt.Errorf("fetch %s page %d: payload key %q missing, response has %v",
			endpoint, page, opts.PayloadKey, envelopeKeys(envelope))
	}
	return decodePayload(raw, opts)
}

// decodePayload resolves the page payload's shape once: a flat list, an
// object map (ordered by key for determinism), or null/absent.
func decodePayload(raw json.RawMessage, opts FetchOptions) ([]Record, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []Record
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var object map[string]Record
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("payload under %q is neither list nor object map", opts.PayloadKey)
	}

	keys := make([]string, 0, len(object))
	for k := range object {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]Record, 0, len(object))
	for _, k := range keys {
		item := object[k]
		if opts.KeepObjectKey && item != nil {
			item = item.Clone()
			item[ObjectKeyField] = k
		}
		items = append(items, item)
	}
	return items, nil
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

func envelopeKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

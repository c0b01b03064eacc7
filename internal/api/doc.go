// Package api provides the client for the fund administrator's REST API.
//
// Every data endpoint is a POST "list" operation taking a JSON filter
// body plus a pagination sub-object {per_page, page}. Responses carry
// their payload under an endpoint-specific key, either as a flat list
// or as an object map; single-shot endpoints return everything on page
// zero. FetchAll walks the page sequence, deduplicates records across
// pages by their identity fields, and returns a flat batch.
//
// Authentication is token based: a form POST to auth/token guarded by
// two client-access headers yields a bearer credential that is sent,
// together with the same headers, on every data request. A 401 during
// a fetch triggers exactly one re-authentication and retry of the
// failing page.
package api

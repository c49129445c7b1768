package apiclient

import "net/url"

// Request is an immutable request descriptor. The one-shot retry marker travels
// with the value; replays use a copy, the caller's value is never modified.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	retried bool
}

// NewRequest builds a descriptor for method and path with an optional JSON body.
func NewRequest(method, path string, body any) Request {
	return Request{Method: method, Path: path, Body: body}
}

// WithQuery returns a copy carrying q.
func (r Request) WithQuery(q url.Values) Request {
	r.Query = q
	return r
}

// Retried reports whether this descriptor is the single replay after a refresh.
func (r Request) Retried() bool { return r.retried }

func (r Request) withRetry() Request {
	r.retried = true
	return r
}

func (r Request) url(base string) string {
	u := base + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}

package core

import "maps"

// Params is a loosely typed parameter map as received from a tool call.
type Params map[string]any

// Request describes one exchange HTTP request before signing and transport.
// It is produced by the protocol layer and consumed by the exchange client.
type Request struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Query       map[string]string `json:"query,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Weight      int               `json:"weight"`
	Class       EndpointClass     `json:"class"`
	RequireAuth bool              `json:"require_auth"`
}

// NewRequest creates a Request with weight 1 against the REQUEST_WEIGHT budget.
func NewRequest(method, path string) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Query:  make(map[string]string),
		Weight: 1,
		Class:  ClassRequest,
	}
}

// SetQuery sets a query parameter and returns the request for chaining.
func (r *Request) SetQuery(key, value string) *Request {
	if r.Query == nil {
		r.Query = make(map[string]string)
	}
	r.Query[key] = value
	return r
}

// SetQueryParams merges the given parameters into the query.
func (r *Request) SetQueryParams(params map[string]string) *Request {
	if r.Query == nil {
		r.Query = make(map[string]string)
	}
	maps.Copy(r.Query, params)
	return r
}

// SetHeader sets a request header and returns the request for chaining.
func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// SetWeight sets the rate-limit weight consumed by the request.
func (r *Request) SetWeight(weight int) *Request {
	r.Weight = weight
	return r
}

// SetClass sets the rate-limit budget the request counts against.
func (r *Request) SetClass(class EndpointClass) *Request {
	r.Class = class
	return r
}

// SetRequireAuth marks the request as needing an HMAC signature.
func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	return r
}

package endpoints

import (
	"net/url"
	"sort"
)

// Request is one logical request: an upstream endpoint and its full
// parameter set. It is never mutated after construction.
type Request struct {
	endpoint string
	params   map[string]string
}

// NewRequest creates a Request, copying params so later changes to the
// caller's map are not observed.
func NewRequest(endpoint string, params map[string]string) Request {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return Request{endpoint: endpoint, params: copied}
}

// Endpoint returns the upstream endpoint name
func (r Request) Endpoint() string {
	return r.endpoint
}

// Params returns a copy of the parameter map
func (r Request) Params() map[string]string {
	copied := make(map[string]string, len(r.params))
	for k, v := range r.params {
		copied[k] = v
	}
	return copied
}

// Param returns a single parameter value
func (r Request) Param(name string) (string, bool) {
	v, ok := r.params[name]
	return v, ok
}

// Query returns the parameters as URL query values. Empty-string
// parameters are kept; the upstream rejects requests that omit them.
func (r Request) Query() url.Values {
	values := make(url.Values, len(r.params))
	for k, v := range r.params {
		values.Set(k, v)
	}
	return values
}

// ParamNames returns the parameter names in sorted order
func (r Request) ParamNames() []string {
	names := make([]string, 0, len(r.params))
	for k := range r.params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Package proxy applies the current identity to intercepted requests and
// hosts a minimal forward proxy that does so for plain HTTP traffic.
package proxy

import "net/http"

// IdentitySource yields the identity string to apply. identity.Store
// satisfies it.
type IdentitySource interface {
	Get() string
}

// Interceptor rewrites the identity header of outbound requests.
type Interceptor struct {
	src IdentitySource
}

func NewInterceptor(src IdentitySource) *Interceptor {
	return &Interceptor{src: src}
}

// OnRequest sets User-Agent to the current identity. No other header is
// touched.
func (ic *Interceptor) OnRequest(h http.Header) {
	h.Set("User-Agent", ic.src.Get())
}

package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"sync"
	"testing"

	"github.com/kalambet/uaproxy/internal/identity"
)

type fixedSource string

func (f fixedSource) Get() string { return string(f) }

func TestOnRequest_SetsOnlyUserAgent(t *testing.T) {
	h := http.Header{"Accept": []string{"*/*"}}

	NewInterceptor(fixedSource("X")).OnRequest(h)

	want := http.Header{"Accept": []string{"*/*"}, "User-Agent": []string{"X"}}
	if !reflect.DeepEqual(h, want) {
		t.Errorf("headers = %v, want %v", h, want)
	}
}

func TestOnRequest_ReplacesExisting(t *testing.T) {
	h := http.Header{}
	h.Add("User-Agent", "curl/8.0")
	h.Add("User-Agent", "dup/1.0")

	NewInterceptor(fixedSource("Y")).OnRequest(h)

	if got := h.Values("User-Agent"); len(got) != 1 || got[0] != "Y" {
		t.Errorf("User-Agent = %v, want [Y]", got)
	}
}

func TestOnRequest_ReadsLiveStore(t *testing.T) {
	store := identity.New(nil)
	ic := NewInterceptor(store)

	h := http.Header{}
	ic.OnRequest(h)
	if got := h.Get("User-Agent"); got != identity.DefaultUserAgent {
		t.Fatalf("User-Agent = %q, want default", got)
	}

	if err := store.Set("live/2"); err != nil {
		t.Fatal(err)
	}
	ic.OnRequest(h)
	if got := h.Get("User-Agent"); got != "live/2" {
		t.Errorf("User-Agent = %q, want live/2", got)
	}
}

// seenHeaders records the headers of requests reaching an upstream server.
type seenHeaders struct {
	mu      sync.Mutex
	headers []http.Header
}

func (s *seenHeaders) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()
		io.WriteString(w, "ok")
	}
}

func (s *seenHeaders) last(t *testing.T) http.Header {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.headers) == 0 {
		t.Fatal("upstream saw no requests")
	}
	return s.headers[len(s.headers)-1]
}

func proxiedClient(t *testing.T, proxySrv *httptest.Server, base *http.Transport) *http.Client {
	t.Helper()
	u, err := url.Parse(proxySrv.URL)
	if err != nil {
		t.Fatal(err)
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(u)
	t.Cleanup(tr.CloseIdleConnections)
	return &http.Client{Transport: tr}
}

func TestForwardProxy_RewritesPlainHTTP(t *testing.T) {
	seen := &seenHeaders{}
	upstream := httptest.NewServer(seen.handler())
	defer upstream.Close()

	store := identity.New(nil)
	if err := store.Set("proxied/1.0"); err != nil {
		t.Fatal(err)
	}
	proxySrv := httptest.NewServer(NewForwardProxy(NewInterceptor(store), nil))
	defer proxySrv.Close()

	client := proxiedClient(t, proxySrv, http.DefaultTransport.(*http.Transport))

	req, _ := http.NewRequest(http.MethodGet, upstream.URL+"/page", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "original/0.1")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request through proxy: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("response = %d %q, want 200 ok", resp.StatusCode, body)
	}
	h := seen.last(t)
	if got := h.Get("User-Agent"); got != "proxied/1.0" {
		t.Errorf("upstream User-Agent = %q, want proxied/1.0", got)
	}
	if got := h.Get("Accept"); got != "text/html" {
		t.Errorf("upstream Accept = %q, want text/html", got)
	}

	// Updates apply to the next request without reconnecting.
	if err := store.Set("proxied/2.0"); err != nil {
		t.Fatal(err)
	}
	resp, err = client.Get(upstream.URL + "/again")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	resp.Body.Close()
	if got := seen.last(t).Get("User-Agent"); got != "proxied/2.0" {
		t.Errorf("upstream User-Agent = %q, want proxied/2.0", got)
	}
}

func TestForwardProxy_TunnelsCONNECT(t *testing.T) {
	seen := &seenHeaders{}
	upstream := httptest.NewTLSServer(seen.handler())
	defer upstream.Close()

	store := identity.New(nil)
	proxySrv := httptest.NewServer(NewForwardProxy(NewInterceptor(store), nil))
	defer proxySrv.Close()

	client := proxiedClient(t, proxySrv, upstream.Client().Transport.(*http.Transport))

	req, _ := http.NewRequest(http.MethodGet, upstream.URL, nil)
	req.Header.Set("User-Agent", "inside-tls/1.0")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request through tunnel: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := seen.last(t).Get("User-Agent"); got != "inside-tls/1.0" {
		t.Errorf("tunnelled User-Agent = %q, want it untouched", got)
	}
}

func TestForwardProxy_RejectsOriginForm(t *testing.T) {
	p := NewForwardProxy(NewInterceptor(fixedSource("X")), nil)

	rr := httptest.NewRecorder()
	p.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/not-a-proxy-request", nil))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestForwardProxy_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	p := NewForwardProxy(NewInterceptor(fixedSource("X")), nil)
	rr := httptest.NewRecorder()
	p.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target+"/x", nil))

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadGateway)
	}
}

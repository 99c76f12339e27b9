package proxy

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const dialTimeout = 10 * time.Second

// ForwardProxy is an HTTP forward proxy. Absolute-form requests are
// forwarded with the identity header rewritten; CONNECT requests are
// tunnelled untouched since their headers travel inside TLS.
type ForwardProxy struct {
	ic     *Interceptor
	rp     *httputil.ReverseProxy
	dialer *net.Dialer
	logger *slog.Logger
}

// NewForwardProxy returns a proxy applying ic to every forwarded request.
func NewForwardProxy(ic *Interceptor, logger *slog.Logger) *ForwardProxy {
	if logger == nil {
		logger = slog.Default()
	}
	p := &ForwardProxy{
		ic:     ic,
		dialer: &net.Dialer{Timeout: dialTimeout},
		logger: logger,
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			p.ic.OnRequest(pr.Out.Header)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.Warn("upstream request failed", "url", r.URL.String(), "error", err)
			http.Error(w, "uaproxy: upstream error", http.StatusBadGateway)
		},
	}
	return p
}

func (p *ForwardProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	if r.Method == http.MethodConnect {
		p.tunnel(w, r, id)
		return
	}

	if !r.URL.IsAbs() || r.URL.Host == "" {
		http.Error(w, "uaproxy: not a proxy request", http.StatusBadRequest)
		return
	}

	p.logger.Debug("proxying request", "request_id", id, "method", r.Method, "url", r.URL.String())
	p.rp.ServeHTTP(w, r)
}

func (p *ForwardProxy) tunnel(w http.ResponseWriter, r *http.Request, id string) {
	p.logger.Debug("tunnelling without identity rewrite", "request_id", id, "host", r.Host)

	dst, err := p.dialer.DialContext(r.Context(), "tcp", r.Host)
	if err != nil {
		p.logger.Warn("tunnel dial failed", "request_id", id, "host", r.Host, "error", err)
		http.Error(w, "uaproxy: upstream unreachable", http.StatusBadGateway)
		return
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		dst.Close()
		http.Error(w, "uaproxy: hijacking not supported", http.StatusInternalServerError)
		return
	}
	src, buf, err := hj.Hijack()
	if err != nil {
		dst.Close()
		p.logger.Warn("hijack failed", "request_id", id, "error", err)
		return
	}
	defer src.Close()
	defer dst.Close()

	if _, err := io.WriteString(src, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		// buf holds any bytes the client sent right after the CONNECT line.
		_, err := io.Copy(dst, buf)
		closeWrite(dst)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(src, dst)
		closeWrite(src)
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		p.logger.Debug("tunnel closed", "request_id", id, "error", err)
	}
}

func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
}

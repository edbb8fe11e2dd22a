package fetch

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// browserTransport sends HTTPS requests over a connection whose TLS
// handshake looks like Firefox. Plain HTTP goes through a normal transport.
// Every HTTPS request dials its own connection, which is closed together
// with the response body.
type browserTransport struct {
	dialer *net.Dialer
	plain  *http.Transport
	hello  utls.ClientHelloID

	// roots verifies server certificates. Nil means the system pool.
	roots *x509.CertPool
}

func newBrowserClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: newBrowserTransport(timeout, nil),
	}
}

func newBrowserTransport(timeout time.Duration, roots *x509.CertPool) *browserTransport {
	dialer := &net.Dialer{Timeout: timeout}
	return &browserTransport{
		dialer: dialer,
		plain:  &http.Transport{DialContext: dialer.DialContext},
		hello:  utls.HelloFirefox_120,
		roots:  roots,
	}
}

func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.plain.RoundTrip(req)
	}

	conn, err := t.handshake(req.Context(), req.URL)
	if err != nil {
		return nil, err
	}

	var (
		resp    *http.Response
		release func() error
	)
	if conn.ConnectionState().NegotiatedProtocol == "h2" {
		cc, err := (&http2.Transport{}).NewClientConn(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("start http2: %w", err)
		}
		release = cc.Close
		resp, err = cc.RoundTrip(req)
		if err != nil {
			release()
			return nil, err
		}
	} else {
		tr := &http.Transport{
			DisableKeepAlives: true,
			DialTLSContext: func(context.Context, string, string) (net.Conn, error) {
				return conn, nil
			},
		}
		release = func() error {
			tr.CloseIdleConnections()
			return conn.Close()
		}
		resp, err = tr.RoundTrip(req)
		if err != nil {
			release()
			return nil, err
		}
	}

	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

func (t *browserTransport) handshake(ctx context.Context, u *url.URL) (*utls.UConn, error) {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}

	raw, err := t.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}

	conn := utls.UClient(raw, &utls.Config{ServerName: host, RootCAs: t.roots}, t.hello)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return conn, nil
}

// releasingBody closes the request's connection after the body.
type releasingBody struct {
	io.ReadCloser
	release func() error
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}

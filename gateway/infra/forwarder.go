package infra

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"api-gateway/gateway/domain"
)

const DefaultRequestTimeout = 10 * time.Second

// ForwardRequest é a requisição de saída, montada logo antes do repasse.
type ForwardRequest struct {
	Method        string
	URL           *url.URL
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
	Deadline      time.Time
}

// BackendResponse é a resposta completa do backend, lida dentro do deadline.
type BackendResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type ForwarderOptions struct {
	// Timeout vale para a troca inteira (conexão, headers e corpo).
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Forwarder é o motor de repasse: tira o prefixo da rota, troca o host pelo do
// backend e espera a resposta até o deadline. O corpo da resposta é lido por
// inteiro antes de ser devolvido, então um timeout nunca gera resposta parcial.
type Forwarder struct {
	client  *http.Client
	timeout time.Duration
}

func NewForwarder(opts ForwarderOptions) *Forwarder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if opts.Transport == nil {
		opts.Transport = NewTransport()
	}
	return &Forwarder{
		client: &http.Client{
			Transport: opts.Transport,
			// 3xx do backend volta para o cliente como está
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: opts.Timeout,
	}
}

func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// repassa o corpo do backend sem descompactar
		DisableCompression: true,
	}
}

func (f *Forwarder) Timeout() time.Duration { return f.timeout }

// Forward repassa `in` para o backend da rota. Erros são domain.ErrTimeout ou
// domain.ErrBackendUnreachable (com a causa encadeada).
func (f *Forwarder) Forward(ctx context.Context, b domain.RouteBinding, in *http.Request) (*BackendResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	fr := NewForwardRequest(b, in, deadline)

	out, err := http.NewRequestWithContext(ctx, fr.Method, fr.URL.String(), fr.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrBackendUnreachable, err)
	}
	out.Header = fr.Header
	out.Host = fr.URL.Host
	out.ContentLength = fr.ContentLength
	if fr.Body == nil || fr.ContentLength == 0 {
		out.Body = http.NoBody
	}

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, err)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)

	return &BackendResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}

// NewForwardRequest monta a requisição de saída sem executá-la.
func NewForwardRequest(b domain.RouteBinding, in *http.Request, deadline time.Time) ForwardRequest {
	body := in.Body
	if body == http.NoBody {
		body = nil
	}
	return ForwardRequest{
		Method:        in.Method,
		URL:           TargetURL(b, in.URL),
		Header:        outboundHeader(in),
		Body:          body,
		ContentLength: in.ContentLength,
		Deadline:      deadline,
	}
}

// TargetURL aplica a reescrita de path da rota sobre o alvo.
//   - o prefixo é removido do path escapado; resto vazio vira "/"
//   - sem PreserveBasePath o path reescrito substitui o path do alvo
//   - com PreserveBasePath o path reescrito é anexado ao path do alvo
//   - segmentos "." e ".." são resolvidos a partir da raiz
//
// Escapes do cliente (%2F, %20) chegam ao backend como vieram.
func TargetURL(b domain.RouteBinding, in *url.URL) *url.URL {
	p := cleanDotSegments(stripEscapedPrefix(b, in))

	u := *b.Target
	raw := p
	base := strings.TrimRight(u.EscapedPath(), "/")
	if b.PreserveBasePath && base != "" {
		raw = base + p
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		u.Path = decoded
		u.RawPath = raw
	} else {
		u.Path = raw
		u.RawPath = ""
	}
	u.RawQuery = in.RawQuery
	u.Fragment = ""
	return &u
}

// stripEscapedPrefix remove o prefixo da forma escapada do path.
func stripEscapedPrefix(b domain.RouteBinding, in *url.URL) string {
	raw := in.EscapedPath()
	if b.Prefix == "/" {
		if raw == "" {
			return "/"
		}
		return raw
	}
	prefix := (&url.URL{Path: b.Prefix}).EscapedPath()
	if rest, ok := strings.CutPrefix(raw, prefix); ok && (rest == "" || rest[0] == '/') {
		if rest == "" {
			return "/"
		}
		return rest
	}
	// prefixo escapado de outro jeito pelo cliente: usa o path decodificado
	return (&url.URL{Path: b.StripPrefix(in.Path)}).EscapedPath()
}

// cleanDotSegments resolve "." e ".." (inclusive %2E%2E) sem decodificar
// os demais segmentos.
func cleanDotSegments(p string) string {
	segs := strings.Split(p, "/")
	dirty := false
	for _, s := range segs {
		if isDotSegment(s) {
			dirty = true
			break
		}
	}
	if !dirty {
		return p
	}

	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch seg, _ := url.PathUnescape(s); seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return "/" + strings.Join(out, "/")
}

func isDotSegment(s string) bool {
	seg, err := url.PathUnescape(s)
	return err == nil && (seg == "." || seg == "..")
}

// headers hop-by-hop (RFC 9110 §7.6.1) não atravessam o gateway
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, sf := range strings.Split(f, ",") {
			if sf = canonicalField(sf); sf != "" {
				h.Del(sf)
			}
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

func canonicalField(s string) string { return http.CanonicalHeaderKey(strings.TrimSpace(s)) }

func outboundHeader(in *http.Request) http.Header {
	h := in.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	removeHopHeaders(h)

	// sem User-Agent o cliente Go colocaria o dele
	if _, ok := h["User-Agent"]; !ok {
		h.Set("User-Agent", "")
	}

	if host, _, err := net.SplitHostPort(in.RemoteAddr); err == nil && host != "" {
		if prior := h.Values("X-Forwarded-For"); len(prior) > 0 {
			host = strings.Join(prior, ", ") + ", " + host
		}
		h.Set("X-Forwarded-For", host)
	}
	if in.Host != "" {
		h.Set("X-Forwarded-Host", in.Host)
	}
	proto := "http"
	if in.TLS != nil {
		proto = "https"
	}
	h.Set("X-Forwarded-Proto", proto)
	return h
}

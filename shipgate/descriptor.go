package shipgate

import (
	"net/http"
	"net/url"
)

// RequestDescriptor is the canonical form of a request for HMAC signing.
//
// It is rebuilt from the live request on every call and fed to the HMAC as
// four ordered byte sequences with no delimiters, so the exact substrings
// matter. The canonicalization is fixed as follows, and both signer and
// verifier build descriptors through the same functions so they cannot
// drift:
//
//   - Protocol: the URL scheme without a trailing colon ("https").
//   - Host: the Host header exactly as sent, no port normalization.
//   - Path: the escaped path, plus "?" and the raw query when one is present.
//   - Authorization: the raw Authorization header value, including any
//     "Bearer " prefix, or the empty string when absent.
//
// The HTTP method is deliberately not part of the canonical form.
type RequestDescriptor struct {
	Protocol      string
	Host          string
	Path          string
	Authorization string
}

// DescriptorFromRequest canonicalizes an inbound server-side request.
//
// protocol overrides the scheme; when empty it is inferred from whether the
// request arrived over TLS. Deployments behind a TLS-terminating proxy must
// pass an explicit "https" (see Config.Protocol).
func DescriptorFromRequest(r *http.Request, protocol string) RequestDescriptor {
	if protocol == "" {
		if r.TLS != nil {
			protocol = "https"
		} else {
			protocol = "http"
		}
	}
	return RequestDescriptor{
		Protocol:      protocol,
		Host:          r.Host,
		Path:          canonicalPath(r.URL),
		Authorization: r.Header.Get(HeaderAuthorization),
	}
}

// descriptorFromOutbound canonicalizes a client-side request before dispatch.
// The request URL is absolute on the client, so the scheme and host come
// straight from it.
func descriptorFromOutbound(req *http.Request) RequestDescriptor {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	return RequestDescriptor{
		Protocol:      req.URL.Scheme,
		Host:          host,
		Path:          canonicalPath(req.URL),
		Authorization: req.Header.Get(HeaderAuthorization),
	}
}

func canonicalPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

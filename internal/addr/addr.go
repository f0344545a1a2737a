// Package addr resolves and formats the host:port textual addresses used in
// relay configuration: listen, src and dst endpoints.
package addr

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// Family identifies the address family of an Endpoint.
type Family uint8

const (
	FamilyNone Family = iota
	FamilyV4
	FamilyV6
)

// Errors returned by ParseHostPort, matching the taxonomy in the relay spec.
var (
	ErrMissingPort          = errors.New("addr: missing port")
	ErrTooManyColons        = errors.New("addr: too many colons in address")
	ErrMissingOpenBracket   = errors.New("addr: missing opening bracket")
	ErrMissingCloseBracket  = errors.New("addr: missing closing bracket")
	ErrUnexpectedOpenBrack  = errors.New("addr: unexpected opening bracket")
	ErrUnexpectedCloseBrack = errors.New("addr: unexpected closing bracket")
	ErrInvalidPort          = errors.New("addr: invalid port")
)

// Endpoint is a resolved network address: a family, an IP (v4 or v6) and a
// port. The zero value is the unspecified endpoint.
type Endpoint struct {
	Family Family
	IP     net.IP
	Port   uint16
}

// Unspecified reports whether e carries no address family.
func (e Endpoint) Unspecified() bool {
	return e.Family == FamilyNone
}

// Equal reports whether e and o denote the same family, IP and port.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Family == o.Family && e.Port == o.Port && e.IP.Equal(o.IP)
}

// String formats e for logging: "ip:port" or "[ip]:port" for v6, matching
// the original relay's netutil formatter. Port 0 is printed literally.
func (e Endpoint) String() string {
	if e.Unspecified() {
		return "<unspecified>"
	}
	if e.Family == FamilyV6 {
		return "[" + e.IP.String() + "]:" + strconv.Itoa(int(e.Port))
	}
	return e.IP.String() + ":" + strconv.Itoa(int(e.Port))
}

// TCPAddr converts e to a *net.TCPAddr suitable for Dial/Listen.
func (e Endpoint) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: e.IP, Port: int(e.Port)}
}

// ParseHostPort parses one of the forms accepted by the relay's --listen,
// --dst and --src flags:
//
//	"host:port"   e.g. "1.2.3.4:80"
//	"[ipv6]:port" e.g. "[::1]:80"
//	"port"        implies "0.0.0.0:port"
//	"host"        implies port 0 ("let the OS choose" for src, or invalid for dst)
func ParseHostPort(text string) (Endpoint, error) {
	if strings.HasPrefix(text, "[") {
		return parseBracketed(text)
	}
	if strings.ContainsAny(text, "[]") {
		if strings.Contains(text, "[") {
			return Endpoint{}, ErrUnexpectedOpenBrack
		}
		return Endpoint{}, ErrUnexpectedCloseBrack
	}

	switch strings.Count(text, ":") {
	case 0:
		// Bare "port" or bare "host".
		if port, err := strconv.Atoi(text); err == nil {
			return endpointFromPort(port)
		}
		return endpointFromHost(text, 0)
	case 1:
		host, portText, _ := strings.Cut(text, ":")
		if portText == "" || host == "" {
			return Endpoint{}, ErrMissingPort
		}
		port, err := parsePort(portText)
		if err != nil {
			return Endpoint{}, err
		}
		return endpointFromHost(host, port)
	default:
		return Endpoint{}, ErrTooManyColons
	}
}

// parseBracketed parses "[host]:port" forms. Per the relay spec's adopted
// resolution of the original parser's ambiguous bound, the host is the
// substring strictly between '[' and ']'.
func parseBracketed(text string) (Endpoint, error) {
	close := strings.IndexByte(text, ']')
	if close < 0 {
		return Endpoint{}, ErrMissingCloseBracket
	}
	if strings.IndexByte(text[1:], '[') >= 0 {
		return Endpoint{}, ErrUnexpectedOpenBrack
	}
	rest := text[close+1:]
	if rest == "" {
		return Endpoint{}, ErrMissingPort
	}
	if rest[0] != ':' {
		return Endpoint{}, ErrMissingPort
	}
	if strings.Count(rest, ":") != 1 {
		return Endpoint{}, ErrTooManyColons
	}
	host := text[1:close]
	port, err := parsePort(rest[1:])
	if err != nil {
		return Endpoint{}, err
	}
	return endpointFromHost(host, port)
}

func parsePort(text string) (int, error) {
	port, err := strconv.Atoi(text)
	if err != nil || port < 0 || port > 65535 {
		return 0, ErrInvalidPort
	}
	return port, nil
}

func endpointFromPort(port int) (Endpoint, error) {
	if port < 0 || port > 65535 {
		return Endpoint{}, ErrInvalidPort
	}
	return Endpoint{Family: FamilyV4, IP: net.IPv4zero, Port: uint16(port)}, nil
}

func endpointFromHost(host string, port int) (Endpoint, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return Endpoint{}, err
		}
		if len(ips) == 0 {
			return Endpoint{}, errors.New("addr: host has no addresses: " + host)
		}
		ip = ips[0]
	}
	if v4 := ip.To4(); v4 != nil {
		return Endpoint{Family: FamilyV4, IP: v4, Port: uint16(port)}, nil
	}
	return Endpoint{Family: FamilyV6, IP: ip.To16(), Port: uint16(port)}, nil
}

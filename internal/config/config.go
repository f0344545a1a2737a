// Package config turns the relay's CLI flags into the immutable list of
// RelayTuple configuration records the server binds at startup.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/relaycore/tcprelay/internal/addr"
)

// ErrDestinationUnspecified is returned when a tuple's dst endpoint has no
// port or a zero/wildcard IP.
var ErrDestinationUnspecified = errors.New("config: destination endpoint must be fully specified")

// Tuple is one relay configuration: where to listen, where to connect
// outbound, and an optional source address to bind the outbound socket to.
type Tuple struct {
	Listen addr.Endpoint
	Src    addr.Endpoint // Unspecified() means "let the OS choose"
	Dst    addr.Endpoint
}

// NewTuple validates and assembles a Tuple from already-parsed endpoints.
func NewTuple(listen, src, dst addr.Endpoint) (Tuple, error) {
	if dst.Port == 0 || dst.IP.IsUnspecified() {
		return Tuple{}, fmt.Errorf("%w: %s", ErrDestinationUnspecified, dst)
	}
	return Tuple{Listen: listen, Src: src, Dst: dst}, nil
}

// BuildTuple parses the --listen/--src/--dst flag trio into a Tuple. src may
// be empty, meaning no source bind.
func BuildTuple(listenText, srcText, dstText string) (Tuple, error) {
	listenEp, err := addr.ParseHostPort(listenText)
	if err != nil {
		return Tuple{}, fmt.Errorf("config: --listen %q: %w", listenText, err)
	}
	dstEp, err := addr.ParseHostPort(dstText)
	if err != nil {
		return Tuple{}, fmt.Errorf("config: --dst %q: %w", dstText, err)
	}
	var srcEp addr.Endpoint
	if srcText != "" {
		srcEp, err = addr.ParseHostPort(srcText)
		if err != nil {
			return Tuple{}, fmt.Errorf("config: --src %q: %w", srcText, err)
		}
	}
	return NewTuple(listenEp, srcEp, dstEp)
}

// ParseRelayList parses the --relay_list|-r batch form:
// "L,S,D/L,S,D/..." where each group is "listen,[src,]dst". A trailing
// empty group after a final '/' is tolerated and skipped, matching the
// original relay's main.cpp.
func ParseRelayList(text string) ([]Tuple, error) {
	groups := strings.Split(text, "/")
	tuples := make([]Tuple, 0, len(groups))
	for i, group := range groups {
		group = strings.TrimSpace(group)
		if group == "" {
			if i == len(groups)-1 {
				continue
			}
			return nil, fmt.Errorf("config: empty group in relay list %q", text)
		}
		fields := strings.Split(group, ",")
		var listenText, srcText, dstText string
		switch len(fields) {
		case 2:
			listenText, dstText = fields[0], fields[1]
		case 3:
			listenText, srcText, dstText = fields[0], fields[1], fields[2]
		default:
			return nil, fmt.Errorf("config: group %q must be listen,[src,]dst", group)
		}
		tuple, err := BuildTuple(listenText, srcText, dstText)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

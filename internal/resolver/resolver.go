// Package resolver turns bootstrap hostnames into socket addresses. It is
// the Go rendering of the DNS-resolution helper spec.md §1 treats as an
// external collaborator (interface only: takes host[:port] strings, yields
// per-entry resolution results), grounded on original_source/src/ns.rs.
package resolver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used when an entry omits one.
const DefaultPort = 6881

// InvalidAddrError means the entry could not be parsed as host[:port] at
// all.
type InvalidAddrError struct{ Raw string }

func (e *InvalidAddrError) Error() string { return fmt.Sprintf("resolver: invalid address %q", e.Raw) }

// InvalidPortError means the port suffix did not parse as a uint16.
type InvalidPortError struct{ Raw string }

func (e *InvalidPortError) Error() string { return fmt.Sprintf("resolver: invalid port in %q", e.Raw) }

// UnresolvedError means the host component could not be resolved via DNS.
type UnresolvedError struct{ Host string }

func (e *UnresolvedError) Error() string { return fmt.Sprintf("resolver: could not resolve %q", e.Host) }

// Result is one entry's resolution outcome: either Addr is set, or Err is
// one of *InvalidAddrError, *InvalidPortError, *UnresolvedError.
type Result struct {
	Addr *net.UDPAddr
	Err  error
}

// Resolve resolves each of entries (each "host", "host:port", or
// "ipv4:port") against r, a *net.Resolver (nil means net.DefaultResolver),
// returning one Result per input in order.
func Resolve(ctx context.Context, r *net.Resolver, entries []string) []Result {
	if r == nil {
		r = net.DefaultResolver
	}

	results := make([]Result, len(entries))
	for i, entry := range entries {
		results[i] = resolveOne(ctx, r, entry)
	}
	return results
}

func resolveOne(ctx context.Context, r *net.Resolver, entry string) Result {
	if addr, err := net.ResolveUDPAddr("udp", entry); err == nil {
		return Result{Addr: addr}
	}

	host, portStr, err := splitHostPort(entry)
	if err != nil {
		return Result{Err: err}
	}

	port := DefaultPort
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p < 0 || p > 65535 {
			return Result{Err: &InvalidPortError{Raw: entry}}
		}
		port = p
	}

	ips, err := r.LookupIP(ctx, "ip4", host)
	if err != nil || len(ips) == 0 {
		return Result{Err: &UnresolvedError{Host: host}}
	}

	return Result{Addr: &net.UDPAddr{IP: ips[0], Port: port}}
}

// splitHostPort separates entry into host and optional port, tolerating a
// bare hostname with no colon at all.
func splitHostPort(entry string) (host, port string, err error) {
	if entry == "" {
		return "", "", &InvalidAddrError{Raw: entry}
	}

	if !strings.Contains(entry, ":") {
		return entry, "", nil
	}

	host, port, err = net.SplitHostPort(entry)
	if err != nil {
		return "", "", &InvalidAddrError{Raw: entry}
	}
	return host, port, nil
}

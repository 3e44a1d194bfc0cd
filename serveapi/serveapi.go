// Package serveapi is an adapter for the service-facing interface §6
// describes as "consumed, not provided": targetmap.ServeClient is the
// interface the core analyzer holds an injected, possibly-nil pointer
// to. This package never changes that interface or the types it carries
// (declared in targetmap/serveclient.go, the consuming side); it only
// provides two concrete implementations of it — an HTTP-over-chi server
// adapter for cmd/eve-serve, and an HTTP client adapter a binary can
// assign to Analyzer.ServeClient. No binary in this repository assigns
// one, so the field stays nil.
package serveapi

import "github.com/evalgo/eve-build/targetmap"

// Client is targetmap.ServeClient under this package's name, for callers
// that want to depend on serveapi without also naming targetmap.
type Client = targetmap.ServeClient

// RetrieveTreeRequest, RetrieveTreeResponse, TargetRequest,
// ServeTargetResponse and ServeTargetVariablesResponse are
// targetmap's request/response types, aliased here so this package's
// server and client code reads naturally without a targetmap. prefix on
// every signature.
type (
	RetrieveTreeRequest          = targetmap.RetrieveTreeRequest
	RetrieveTreeResponse         = targetmap.RetrieveTreeResponse
	TargetRequest                = targetmap.ServeTargetRequest
	ServeTargetResponse          = targetmap.ServeTargetResponse
	ServeTargetVariablesResponse = targetmap.ServeTargetVariablesResponse
)

package main

import (
	"fmt"
	"strings"

	"github.com/evalgo/eve-build/targetmap"
)

// parseTargetName parses the "repository@module:name" form
// targetmap.TargetName.String() renders, the canonical way this binary
// names a target on the command line.
func parseTargetName(s string) (targetmap.TargetName, error) {
	repo := ""
	rest := s
	if idx := strings.Index(rest, "@"); idx >= 0 {
		repo = rest[:idx]
		rest = rest[idx+1:]
	}
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return targetmap.TargetName{}, fmt.Errorf("invalid target %q: expected [repository@]module:name", s)
	}
	module, name := rest[:idx], rest[idx+1:]
	if name == "" {
		return targetmap.TargetName{}, fmt.Errorf("invalid target %q: empty target name", s)
	}
	return targetmap.TargetName{Repository: repo, Module: module, Name: name}, nil
}

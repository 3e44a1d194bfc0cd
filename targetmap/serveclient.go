package targetmap

import (
	"context"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

// RetrieveTreeRequest asks the serve endpoint to resolve an archive
// (named by its content digest) into a tree artifact.
type RetrieveTreeRequest struct {
	ArchiveDigest exhash.Digest
}

// RetrieveTreeResponse carries the resolved tree identifier, or Found
// false if the serve endpoint has no tree for the requested archive.
type RetrieveTreeResponse struct {
	TreeID exhash.Digest
	Found  bool
}

// ServeTargetRequest is the common request shape §6 specifies: "requests
// carry (repo_root_tree_id, config, target)".
type ServeTargetRequest struct {
	RepoRootTreeID exhash.Digest
	Config         *expr.Configuration
	Target         TargetName
}

// ServeTargetResponse carries the cached target-result digest the serve
// endpoint already analyzed this target to, or Found false if it has
// none.
type ServeTargetResponse struct {
	ResultDigest exhash.Digest
	Found        bool
}

// ServeTargetVariablesResponse carries the configuration variable names
// the target's rule declares it reads, independent of any particular
// configuration's values.
type ServeTargetVariablesResponse struct {
	Variables []string
	Found     bool
}

// ServeClient is the §6 "service-facing interface (consumed, not
// provided)": a pointer the analyzer is injected with, never an
// implementation it provides itself. A nil ServeClient means no serve
// endpoint is configured; callers check for nil before calling through
// it rather than treating absence as an error — per §7, an absent root
// with no serve endpoint configured is a warning, not a failure.
type ServeClient interface {
	RetrieveTreeFromArchive(ctx context.Context, req RetrieveTreeRequest) (RetrieveTreeResponse, error)
	ServeTarget(ctx context.Context, req ServeTargetRequest) (ServeTargetResponse, error)
	ServeTargetVariables(ctx context.Context, req ServeTargetRequest) (ServeTargetVariablesResponse, error)
}

package serveapi

import (
	"encoding/json"
	"fmt"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
	"github.com/evalgo/eve-build/targetmap"
)

// targetRequestWire is TargetRequest's JSON rendering, matching §6's
// "(repo_root_tree_id, config, target)" request shape.
type targetRequestWire struct {
	RepoRootTreeID string          `json:"repo_root_tree_id"`
	Config         json.RawMessage `json:"config"`
	Target         [3]string       `json:"target"`
}

func encodeTargetRequest(req TargetRequest) ([]byte, error) {
	cfgJSON, err := req.Config.Vars().ToJSON(expr.SerializeAll)
	if err != nil {
		return nil, fmt.Errorf("encoding target request config: %w", err)
	}
	return json.Marshal(targetRequestWire{
		RepoRootTreeID: req.RepoRootTreeID.String(),
		Config:         cfgJSON,
		Target:         [3]string{req.Target.Repository, req.Target.Module, req.Target.Name},
	})
}

func decodeTargetRequest(data []byte) (TargetRequest, error) {
	var w targetRequestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return TargetRequest{}, fmt.Errorf("decoding target request: %w", err)
	}
	treeID, err := exhash.FromHex(w.RepoRootTreeID)
	if err != nil {
		return TargetRequest{}, fmt.Errorf("decoding target request tree id: %w", err)
	}
	cfgVal, ok := expr.FromJSON(w.Config)
	if !ok {
		return TargetRequest{}, fmt.Errorf("decoding target request config")
	}
	cfgMap, ok := cfgVal.(*expr.MapValue)
	if !ok {
		return TargetRequest{}, fmt.Errorf("target request config must be a map")
	}
	return TargetRequest{
		RepoRootTreeID: treeID,
		Config:         expr.NewConfiguration(cfgMap),
		Target: targetmap.TargetName{
			Repository: w.Target[0],
			Module:     w.Target[1],
			Name:       w.Target[2],
		},
	}, nil
}

type retrieveTreeRequestWire struct {
	ArchiveDigest string `json:"archive_digest"`
}

type retrieveTreeResponseWire struct {
	TreeID string `json:"tree_id,omitempty"`
	Found  bool   `json:"found"`
}

type serveTargetResponseWire struct {
	ResultDigest string `json:"result_digest,omitempty"`
	Found        bool   `json:"found"`
}

type serveTargetVariablesResponseWire struct {
	Variables []string `json:"variables,omitempty"`
	Found     bool     `json:"found"`
}

// errorResponseWire is the body a non-2xx response carries.
type errorResponseWire struct {
	Error string `json:"error"`
}

package targetmap

import (
	"context"
	"testing"

	"github.com/evalgo/eve-build/expr"
	"github.com/evalgo/eve-build/expr/exhash"
)

type fakeServeClient struct {
	resultDigest exhash.Digest
}

func (f *fakeServeClient) RetrieveTreeFromArchive(context.Context, RetrieveTreeRequest) (RetrieveTreeResponse, error) {
	return RetrieveTreeResponse{}, nil
}

func (f *fakeServeClient) ServeTarget(context.Context, ServeTargetRequest) (ServeTargetResponse, error) {
	return ServeTargetResponse{ResultDigest: f.resultDigest, Found: !f.resultDigest.IsZero()}, nil
}

func (f *fakeServeClient) ServeTargetVariables(context.Context, ServeTargetRequest) (ServeTargetVariablesResponse, error) {
	return ServeTargetVariablesResponse{}, nil
}

func TestAnalyzerServeClientDefaultsNil(t *testing.T) {
	a := New(nil, nil, nil, nil)
	if a.ServeClient != nil {
		t.Fatalf("expected a freshly constructed Analyzer to have no serve client configured")
	}
}

func TestAnalyzerServeClientAcceptsImplementation(t *testing.T) {
	a := New(nil, nil, nil, nil)
	client := &fakeServeClient{resultDigest: exhash.Compute([]byte("cached"))}
	a.ServeClient = client

	resp, err := a.ServeClient.ServeTarget(context.Background(), ServeTargetRequest{
		RepoRootTreeID: exhash.Compute([]byte("root")),
		Config:         expr.EmptyConfiguration(),
		Target:         TargetName{Repository: "main", Module: "src", Name: "lib"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Found || resp.ResultDigest != client.resultDigest {
		t.Fatalf("expected the injected serve client's response, got %+v", resp)
	}
}

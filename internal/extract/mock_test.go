package extract

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/relief-ops/checklist-cli/pkg/backend"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Extract(ctx context.Context, req backend.NodeRequest) (*backend.NodeResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*backend.NodeResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// onNode registers a canned response for the given node id.
func (m *mockBackend) onNode(nodeID string, resp *backend.NodeResponse, err error) *mock.Call {
	return m.On("Extract", mock.Anything, mock.MatchedBy(func(req backend.NodeRequest) bool {
		return req.NodeID == nodeID
	})).Return(resp, err)
}

package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/relief-ops/checklist-cli/internal/model"
	"github.com/relief-ops/checklist-cli/internal/resilience"
	"github.com/relief-ops/checklist-cli/pkg/backend"
)

// --- Backend Mock ---

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Extract(ctx context.Context, req backend.NodeRequest) (*backend.NodeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.NodeResponse), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

func (m *mockStore) CreateRun(ctx context.Context, document string) (*model.Run, error) {
	args := m.Called(ctx, document)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockStore) CompleteRun(ctx context.Context, id string, status model.RunStatus, result string) error {
	return m.Called(ctx, id, status, result).Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) CreateStage(ctx context.Context, runID, name string) (*model.StageRecord, error) {
	args := m.Called(ctx, runID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StageRecord), args.Error(1)
}

func (m *mockStore) CompleteStage(ctx context.Context, stageID, status string, durationMs int64, errMsg string) error {
	return m.Called(ctx, stageID, status, durationMs, errMsg).Error(0)
}

func (m *mockStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StageRecord), args.Error(1)
}

func (m *mockStore) EnqueueQuarantine(ctx context.Context, entry resilience.QuarantinedNode) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) ListQuarantine(ctx context.Context, filter resilience.QuarantineFilter) ([]resilience.QuarantinedNode, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resilience.QuarantinedNode), args.Error(1)
}

func (m *mockStore) DeleteQuarantine(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// newHappyStore returns a store mock preloaded with permissive expectations
// for the run bookkeeping the pipeline performs on every execution.
func newHappyStore() *mockStore {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.Anything).Return(&model.Run{ID: "run-1"}, nil)
	st.On("UpdateRunStatus", mock.Anything, "run-1", mock.Anything).Return(nil)
	st.On("CreateStage", mock.Anything, "run-1", mock.Anything).
		Return(&model.StageRecord{ID: "stage-1", RunID: "run-1"}, nil)
	st.On("CompleteStage", mock.Anything, "stage-1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("CompleteRun", mock.Anything, "run-1", mock.Anything, mock.Anything).Return(nil)
	st.On("EnqueueQuarantine", mock.Anything, mock.Anything).Return(nil)
	return st
}

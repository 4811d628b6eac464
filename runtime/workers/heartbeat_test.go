package workers

import (
	"bytes"
	"context"
	"educonnect/contract"
	"educonnect/mocks"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shirou/gopsutil/process"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHeartbeatWorker_Beat(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	worker := NewHeartbeatWorker(log, mockRegistry, time.Minute)
	p, err := process.NewProcess(int32(os.Getpid()))
	req.NoError(err)

	// Given a registry with one connection in one room
	mockRegistry.EXPECT().Stats().Return(contract.RegistryStats{Connections: 1, Rooms: 1, Members: 1}).Times(1)

	// When the worker beats
	worker.Beat(p)

	// Then the registry counters are logged
	req.Contains(buf.String(), "Heartbeat")
	req.Contains(buf.String(), "connections=1")
}

func TestHeartbeatWorker_Run_Stops_With_Context(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	worker := NewHeartbeatWorker(log, mocks.NewMockIRegistry(ctrl), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req.NoError(worker.Run(ctx))
}

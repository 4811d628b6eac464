package workers

import (
	"context"
	"educonnect/mocks"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	workerMock := mocks.NewMockWorker(ctrl)

	var calls atomic.Int32
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			calls.Add(1)
			panic("boom")
		}).
		AnyTimes()

	sup := NewSupervisor(log, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(ctx)
		close(done)
	}()

	// Waiting for panics and restarts
	time.Sleep(500 * time.Millisecond)

	req.GreaterOrEqual(calls.Load(), int32(2))
	cancel()
	<-done
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	workerMock := mocks.NewMockWorker(ctrl)

	// Given a worker running only once
	workerMock.EXPECT().
		Run(gomock.Any()).
		Return(nil).
		Times(1)

	sup := NewSupervisor(log, 0)

	// Given a channel to notify when Run() terminated
	done := make(chan struct{})

	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Then supervisor detected  a success, returned nil and stopped
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_Stop_Cancels_Workers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	workerMock := mocks.NewMockWorker(ctrl)

	// Given a worker blocking until its context is cancelled
	started := make(chan struct{})
	workerMock.EXPECT().
		Run(gomock.Any()).
		DoAndReturn(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}).
		Times(1)

	sup := NewSupervisor(slog.Default(), 0)
	done := make(chan struct{})
	go func() {
		sup.Add(workerMock).Run(context.Background())
		close(done)
	}()
	<-started

	// When the supervisor is stopped
	sup.Stop()

	// Then Run returns without restarting the worker
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped")
	}
}

func TestSupervisor_Stop_Before_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	workerMock := mocks.NewMockWorker(ctrl)
	workerMock.EXPECT().Run(gomock.Any()).Times(0)

	sup := NewSupervisor(slog.Default(), 0)
	sup.Stop()

	sup.Add(workerMock).Run(context.Background())
}

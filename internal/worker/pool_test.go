package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/asset-processing/worker/internal/job"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, j job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

type fakeScheduler struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeScheduler) Release(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, jobID)
}

func (f *fakeScheduler) releasedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.released))
	copy(out, f.released)
	return out
}

func TestPool_ProcessesQueuedJob(t *testing.T) {
	processor := &mockProcessor{}
	scheduler := &fakeScheduler{}
	queue := make(chan job.Job, 1)

	j := job.Job{ID: "j1"}
	processor.On("Process", mock.Anything, j).Return(nil)

	p := New(queue, processor, scheduler, 1, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	queue <- j
	close(queue)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not drain queue and exit")
	}
	cancel()

	processor.AssertExpectations(t)
	assert.Equal(t, []string{"j1"}, scheduler.releasedIDs())
}

func TestPool_ReleasesEvenWhenProcessFails(t *testing.T) {
	processor := &mockProcessor{}
	scheduler := &fakeScheduler{}
	queue := make(chan job.Job, 1)

	j := job.Job{ID: "j1"}
	processor.On("Process", mock.Anything, j).Return(errors.New("boom"))

	p := New(queue, processor, scheduler, 1, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	queue <- j
	close(queue)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not drain queue and exit")
	}
	cancel()

	assert.Equal(t, []string{"j1"}, scheduler.releasedIDs())
}

func TestPool_SameJobSerializedAcrossWorkers(t *testing.T) {
	processor := &mockProcessor{}
	scheduler := &fakeScheduler{}
	queue := make(chan job.Job, 2)

	j := job.Job{ID: "j1"}

	var mu sync.Mutex
	concurrent := 0
	maxConcurrent := 0

	processor.On("Process", mock.Anything, j).Return(nil).Twice().Run(func(args mock.Arguments) {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		concurrent--
		mu.Unlock()
	})

	p := New(queue, processor, scheduler, 4, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	queue <- j
	queue <- j
	close(queue)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not drain queue and exit")
	}
	cancel()

	assert.LessOrEqual(t, maxConcurrent, 1, "per-job lock must serialize concurrent attempts at the same job id")
	processor.AssertExpectations(t)
}

func TestPool_RecoversFromPanic(t *testing.T) {
	processor := &mockProcessor{}
	scheduler := &fakeScheduler{}
	queue := make(chan job.Job, 1)

	j := job.Job{ID: "j1"}
	processor.On("Process", mock.Anything, j).Run(func(args mock.Arguments) {
		panic("unexpected")
	}).Return(nil)

	p := New(queue, processor, scheduler, 1, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	queue <- j
	close(queue)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not recover from panic and exit")
	}
	cancel()

	assert.Equal(t, []string{"j1"}, scheduler.releasedIDs())
}

func TestPool_RunStopsOnContextCancelWithEmptyQueue(t *testing.T) {
	processor := &mockProcessor{}
	scheduler := &fakeScheduler{}
	queue := make(chan job.Job)

	p := New(queue, processor, scheduler, 2, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop on context cancel")
	}
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/HybridInfer/src/logging"
	"www.github.com/Wanderer0074348/HybridInfer/src/mocks"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

func backendLoader(name string) (Loader, *mocks.MockBackend) {
	b := &mocks.MockBackend{BackendName: name}
	return func(ctx context.Context) (models.Backend, error) { return b, nil }, b
}

func failingLoader(err error) Loader {
	return func(ctx context.Context) (models.Backend, error) { return nil, err }
}

func tiersOf(sessions []*Session) []models.BackendTier {
	out := make([]models.BackendTier, len(sessions))
	for i, s := range sessions {
		out[i] = s.Tier
	}
	return out
}

func TestRegistry_AcquireInPolicyOrder(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	cpu, _ := backendLoader("cpu")
	iso, _ := backendLoader("iso")
	remote, _ := backendLoader("remote")
	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierRemoteAPI, false, remote))
	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierCpuLocalRuntime, false, cpu))
	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierIsolatedAccelerator, false, iso))

	reg.Init(context.Background())
	sessions, err := reg.AcquireBackends(context.Background(), models.TaskEmbedding)

	require.NoError(t, err)
	assert.Equal(t, []models.BackendTier{
		models.TierIsolatedAccelerator,
		models.TierCpuLocalRuntime,
		models.TierRemoteAPI,
	}, tiersOf(sessions))
}

func TestRegistry_SkipsUnavailableAndFailed(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	ok, _ := backendLoader("cpu")
	require.NoError(t, reg.Register(models.TaskSceneTextOCR, models.TierDedicatedAccelerator, false,
		failingLoader(fmt.Errorf("%w: no npu", models.ErrBackendUnavailable))))
	require.NoError(t, reg.Register(models.TaskSceneTextOCR, models.TierAcceleratedLocalRuntime, false,
		failingLoader(errors.New("cuda init failed"))))
	require.NoError(t, reg.Register(models.TaskSceneTextOCR, models.TierCpuLocalRuntime, false, ok))
	reg.Init(context.Background())

	sessions, err := reg.AcquireBackends(context.Background(), models.TaskSceneTextOCR)
	require.NoError(t, err)
	assert.Equal(t, []models.BackendTier{models.TierCpuLocalRuntime}, tiersOf(sessions))

	statuses := reg.Statuses()
	byTier := map[models.BackendTier]models.BackendStatus{}
	for _, st := range statuses {
		if st.Task == models.TaskSceneTextOCR {
			byTier[st.Tier] = st
		}
	}
	assert.Equal(t, models.StateUnavailable, byTier[models.TierDedicatedAccelerator].State)
	assert.Equal(t, models.StateUnavailable, byTier[models.TierIsolatedAccelerator].State)
	assert.Equal(t, models.StateFailedToLoad, byTier[models.TierAcceleratedLocalRuntime].State)
	assert.Contains(t, byTier[models.TierAcceleratedLocalRuntime].LoadError, "cuda init failed")
	assert.Equal(t, models.StateLoaded, byTier[models.TierCpuLocalRuntime].State)
	assert.Equal(t, "cpu", byTier[models.TierCpuLocalRuntime].Backend)
}

func TestRegistry_LazyLoadsOnceOnFirstAcquire(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	var calls atomic.Int32
	b := &mocks.MockBackend{BackendName: "cpu"}
	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierCpuLocalRuntime, true,
		func(ctx context.Context) (models.Backend, error) {
			calls.Add(1)
			return b, nil
		}))

	reg.Init(context.Background())
	assert.Equal(t, int32(0), calls.Load(), "lazy slot must not load at init")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessions, err := reg.AcquireBackends(context.Background(), models.TaskEmbedding)
			assert.NoError(t, err)
			assert.Len(t, sessions, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_LazyFailureIsMemoized(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	var calls atomic.Int32
	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierCpuLocalRuntime, true,
		func(ctx context.Context) (models.Backend, error) {
			calls.Add(1)
			return nil, errors.New("model file missing")
		}))

	for i := 0; i < 3; i++ {
		sessions, err := reg.AcquireBackends(context.Background(), models.TaskEmbedding)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_UnknownTask(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	_, err := reg.AcquireBackends(context.Background(), models.TaskType("translation"))
	assert.ErrorIs(t, err, models.ErrUnknownTaskType)

	err = reg.Register(models.TaskType("translation"), models.TierCpuLocalRuntime, false, nil)
	assert.ErrorIs(t, err, models.ErrUnknownTaskType)
}

func TestRegistry_RejectsTierOutsidePolicy(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())
	l, _ := backendLoader("remote")

	err := reg.Register(models.TaskObjectDetection, models.TierRemoteAPI, false, l)
	assert.Error(t, err)

	require.NoError(t, reg.Register(models.TaskObjectDetection, models.TierCpuLocalRuntime, false, l))
	assert.Error(t, reg.Register(models.TaskObjectDetection, models.TierCpuLocalRuntime, false, l))
}

func TestRegistry_StatusesCoverEveryPolicySlot(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	statuses := reg.Statuses()

	assert.Len(t, statuses, 12)
	for _, st := range statuses {
		assert.Equal(t, models.StateUnavailable, st.State)
		assert.Equal(t, st.Tier.String(), st.TierName)
	}
}

func TestSession_InferSerializesCalls(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	var active, peak atomic.Int32
	b := &mocks.MockBackend{BackendName: "cpu"}
	b.On("Infer", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		active.Add(-1)
	}).Return(&models.InferenceResult{Status: models.StatusSuccess}, nil)

	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierCpuLocalRuntime, false,
		func(ctx context.Context) (models.Backend, error) { return b, nil }))
	reg.Init(context.Background())
	sessions, err := reg.AcquireBackends(context.Background(), models.TaskEmbedding)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sessions[0].Infer(context.Background(), &models.InferenceRequest{Task: models.TaskEmbedding})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	b.AssertNumberOfCalls(t, "Infer", 16)
}

func TestRegistry_CloseReleasesBackends(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	l, b := backendLoader("cpu")
	b.On("Close").Return(nil)
	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierCpuLocalRuntime, false, l))
	reg.Init(context.Background())

	require.NoError(t, reg.Close())
	b.AssertCalled(t, "Close")

	sessions, err := reg.AcquireBackends(context.Background(), models.TaskEmbedding)
	assert.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRegistry_CloseDuringLazyLoadReleasesLateBackend(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	b := &mocks.MockBackend{BackendName: "cpu"}
	b.On("Close").Return(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierCpuLocalRuntime, true,
		func(ctx context.Context) (models.Backend, error) {
			close(started)
			<-release
			return b, nil
		}))

	type acquired struct {
		sessions []*Session
		err      error
	}
	done := make(chan acquired, 1)
	go func() {
		sessions, err := reg.AcquireBackends(context.Background(), models.TaskEmbedding)
		done <- acquired{sessions, err}
	}()

	<-started
	require.NoError(t, reg.Close())
	close(release)
	got := <-done

	assert.NoError(t, got.err)
	assert.Empty(t, got.sessions)
	b.AssertNumberOfCalls(t, "Close", 1)

	st := reg.session(models.TaskEmbedding, models.TierCpuLocalRuntime)
	assert.Equal(t, models.StateUnavailable, st.State())
	assert.ErrorIs(t, st.LoadError(), models.ErrBackendUnavailable)
}

func TestRegistry_NoLazyLoadAfterClose(t *testing.T) {
	reg := New(DefaultPolicy(), logging.Discard())

	var calls atomic.Int32
	require.NoError(t, reg.Register(models.TaskEmbedding, models.TierCpuLocalRuntime, true,
		func(ctx context.Context) (models.Backend, error) {
			calls.Add(1)
			return &mocks.MockBackend{}, nil
		}))
	require.NoError(t, reg.Close())

	// AcquireBackends stops at the registry flag, so exercise the session guard directly
	s := reg.session(models.TaskEmbedding, models.TierCpuLocalRuntime)
	assert.False(t, s.ensureLoaded(context.Background()))
	assert.Equal(t, int32(0), calls.Load())
}

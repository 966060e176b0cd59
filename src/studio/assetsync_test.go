package studio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssets struct {
	toggle   func(ctx context.Context, id string) (*LikeResult, error)
	download func(ctx context.Context, id string) (*DownloadResult, error)
}

func (f *fakeAssets) ToggleLike(ctx context.Context, id string) (*LikeResult, error) {
	return f.toggle(ctx, id)
}

func (f *fakeAssets) IncrementDownload(ctx context.Context, id string) (*DownloadResult, error) {
	return f.download(ctx, id)
}

// serverList returns an AssetList whose loader serves a copy of *server and
// counts fetches.
func serverList(t *testing.T, name string, server *[]Asset, loads *atomic.Int32) *AssetList {
	t.Helper()
	l := NewAssetList(name, func(context.Context) ([]Asset, error) {
		loads.Add(1)
		return append([]Asset(nil), (*server)...), nil
	}, nil)
	require.NoError(t, l.Refresh(context.Background()))
	return l
}

func TestToggleLikeIsOptimisticAndReconciled(t *testing.T) {
	server := []Asset{{ID: "a1", Type: AssetImage, Downloads: 2}}
	var loads atomic.Int32
	left := serverList(t, "left", &server, &loads)
	right := serverList(t, "right", &server, &loads)

	backend := &fakeAssets{toggle: func(_ context.Context, id string) (*LikeResult, error) {
		for _, l := range []*AssetList{left, right} {
			a, ok := l.FindAsset(id)
			require.True(t, ok)
			assert.True(t, a.Liked, "%s should show the optimistic value", l.Name())
		}
		return &LikeResult{Asset: Asset{URL: "https://cdn/a1.png"}, Liked: true}, nil
	}}
	s := NewAssetSync(backend, nil, nil)
	s.Register(left)
	s.Register(right)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := s.Broker().Subscribe(ctx)

	res, err := s.ToggleLike(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, res.Liked)

	for _, l := range []*AssetList{left, right} {
		a, _ := l.FindAsset("a1")
		assert.True(t, a.Liked)
		assert.Equal(t, "https://cdn/a1.png", a.URL)
		assert.Equal(t, 2, a.Downloads)
	}

	select {
	case ev := <-events:
		assert.Equal(t, EventAssetsChanged, ev.Type)
		assert.Equal(t, "a1", ev.Payload.AssetID)
		require.NotNil(t, ev.Payload.Asset)
		assert.True(t, ev.Payload.Asset.Liked)
	case <-time.After(time.Second):
		t.Fatal("no change event published")
	}
}

func TestToggleLikeFailureRollsBackAndRefetches(t *testing.T) {
	server := []Asset{{ID: "a1", Liked: true}}
	var loads atomic.Int32
	view := serverList(t, "gallery", &server, &loads)
	require.EqualValues(t, 1, loads.Load())

	backend := &fakeAssets{toggle: func(context.Context, string) (*LikeResult, error) {
		return nil, errors.New("500")
	}}
	s := NewAssetSync(backend, nil, nil)
	s.Register(view)

	_, err := s.ToggleLike(context.Background(), "a1")
	require.Error(t, err)

	a, ok := view.FindAsset("a1")
	require.True(t, ok)
	assert.True(t, a.Liked)
	assert.EqualValues(t, 2, loads.Load())
	assert.Zero(t, s.Broker().Dropped())
}

func TestToggleLikeDeletedRemovesEverywhere(t *testing.T) {
	server := []Asset{{ID: "a1", Liked: true}, {ID: "a2"}}
	var loads atomic.Int32
	left := serverList(t, "left", &server, &loads)
	right := serverList(t, "right", &server, &loads)

	backend := &fakeAssets{toggle: func(context.Context, string) (*LikeResult, error) {
		return &LikeResult{Deleted: true}, nil
	}}
	s := NewAssetSync(backend, nil, nil)
	s.Register(left)
	unregister := s.Register(right)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := s.Broker().Subscribe(ctx)

	_, err := s.ToggleLike(context.Background(), "a1")
	require.NoError(t, err)
	for _, l := range []*AssetList{left, right} {
		_, ok := l.FindAsset("a1")
		assert.False(t, ok)
		assert.Len(t, l.Assets(), 1)
	}
	ev := <-events
	assert.True(t, ev.Payload.Deleted)
	assert.Nil(t, ev.Payload.Asset)

	unregister()
	backend.toggle = func(context.Context, string) (*LikeResult, error) {
		return &LikeResult{Liked: true}, nil
	}
	_, err = s.ToggleLike(context.Background(), "a2")
	require.NoError(t, err)
	a, _ := right.FindAsset("a2")
	assert.False(t, a.Liked, "unregistered views are left alone")
}

func TestRecordDownload(t *testing.T) {
	server := []Asset{{ID: "v1", Type: AssetVideo, Downloads: 2}}
	var loads atomic.Int32
	view := serverList(t, "gallery", &server, &loads)

	backend := &fakeAssets{download: func(_ context.Context, id string) (*DownloadResult, error) {
		a, _ := view.FindAsset(id)
		assert.Equal(t, 3, a.Downloads)
		return &DownloadResult{Downloads: 7}, nil
	}}
	s := NewAssetSync(backend, nil, nil)
	s.Register(view)

	res, err := s.RecordDownload(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, 7, res.Downloads)
	a, _ := view.FindAsset("v1")
	assert.Equal(t, 7, a.Downloads)

	backend.download = func(context.Context, string) (*DownloadResult, error) {
		return nil, errors.New("offline")
	}
	_, err = s.RecordDownload(context.Background(), "v1")
	require.Error(t, err)
	a, _ = view.FindAsset("v1")
	assert.Equal(t, 7, a.Downloads)
}

func TestActionsOnOneAssetAreSerialized(t *testing.T) {
	var active, peak atomic.Int32
	backend := &fakeAssets{toggle: func(context.Context, string) (*LikeResult, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return &LikeResult{Liked: true}, nil
	}}
	s := NewAssetSync(backend, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ToggleLike(context.Background(), "same")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, peak.Load())

	s.mu.Lock()
	assert.Empty(t, s.locks)
	s.mu.Unlock()
}

func TestActionsOnDifferentAssetsOverlap(t *testing.T) {
	bStarted := make(chan struct{})
	backend := &fakeAssets{toggle: func(_ context.Context, id string) (*LikeResult, error) {
		if id == "b" {
			close(bStarted)
			return &LikeResult{}, nil
		}
		select {
		case <-bStarted:
			return &LikeResult{Liked: true}, nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("b never ran while a was in flight")
		}
	}}
	s := NewAssetSync(backend, nil, nil)

	errA := make(chan error, 1)
	go func() {
		_, err := s.ToggleLike(context.Background(), "a")
		errA <- err
	}()
	// Let a acquire its lock first.
	time.Sleep(10 * time.Millisecond)
	_, err := s.ToggleLike(context.Background(), "b")
	require.NoError(t, err)
	require.NoError(t, <-errA)
}

func TestAcquireHonoursContext(t *testing.T) {
	s := NewAssetSync(&fakeAssets{}, nil, nil)
	release, err := s.acquire(context.Background(), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.acquire(ctx, "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	s.mu.Lock()
	assert.Empty(t, s.locks)
	s.mu.Unlock()
}

func TestTranscriptTakesPartInAssetSync(t *testing.T) {
	b := &fakeBackend{generate: func(_ context.Context, req *GenerateRequest) (*GenerateResponse, error) {
		resp := reply("conv-1", "done")
		resp.Message.Assets = []Asset{{ID: "v1", Type: AssetVideo, URI: "files/v1"}}
		return resp, nil
	}}
	o := newTestOrchestrator(b, VideoParams{})
	_, err := o.Submit(context.Background(), "a boat", SubmitOptions{})
	require.NoError(t, err)

	s := NewAssetSync(&fakeAssets{toggle: func(context.Context, string) (*LikeResult, error) {
		return &LikeResult{Liked: true}, nil
	}}, nil, nil)
	s.Register(o.TranscriptView())

	_, err = s.ToggleLike(context.Background(), "v1")
	require.NoError(t, err)
	a, ok := o.Transcript().FindAsset("v1")
	require.True(t, ok)
	assert.True(t, a.Liked)
}

func TestAssetListWatchRefetchesOnChange(t *testing.T) {
	server := []Asset{{ID: "a1"}}
	var loads atomic.Int32
	list := serverList(t, "sidebar", &server, &loads)
	broker := NewBroker[AssetChange](4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	list.Watch(ctx, broker)
	require.Eventually(t, func() bool { return broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	broker.Publish(EventAssetsChanged, AssetChange{AssetID: "a1"})
	require.Eventually(t, func() bool { return loads.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return broker.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

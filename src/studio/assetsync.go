package studio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// AssetView is anything that renders its own copy of assets.
type AssetView interface {
	FindAsset(id string) (Asset, bool)
	ApplyAsset(id string, fn func(*Asset)) bool
	RemoveAsset(id string) bool
	// Refresh replaces the view's copy with the server's.
	Refresh(ctx context.Context) error
}

const refreshTimeout = 15 * time.Second

type assetLock struct {
	sem  *semaphore.Weighted
	refs int
}

// AssetSync applies like and download actions optimistically across every
// registered view and reconciles them with the server. Actions on the same
// asset run one at a time; different assets do not wait on each other.
type AssetSync struct {
	backend AssetBackend
	broker  *Broker[AssetChange]
	logger  *zap.Logger

	mu    sync.Mutex
	views map[int]AssetView
	next  int
	locks map[string]*assetLock
}

func NewAssetSync(backend AssetBackend, broker *Broker[AssetChange], logger *zap.Logger) *AssetSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	if broker == nil {
		broker = NewBroker[AssetChange](0)
	}
	return &AssetSync{
		backend: backend,
		broker:  broker,
		logger:  logger,
		views:   make(map[int]AssetView),
		locks:   make(map[string]*assetLock),
	}
}

func (s *AssetSync) Broker() *Broker[AssetChange] { return s.broker }

// Register adds a view; the returned func removes it.
func (s *AssetSync) Register(v AssetView) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.views[id] = v
	return func() {
		s.mu.Lock()
		delete(s.views, id)
		s.mu.Unlock()
	}
}

func (s *AssetSync) snapshotViews() []AssetView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AssetView, 0, len(s.views))
	for i := 0; i < s.next; i++ {
		if v, ok := s.views[i]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (s *AssetSync) acquire(ctx context.Context, assetID string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[assetID]
	if !ok {
		l = &assetLock{sem: semaphore.NewWeighted(1)}
		s.locks[assetID] = l
	}
	l.refs++
	s.mu.Unlock()

	drop := func() {
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, assetID)
		}
		s.mu.Unlock()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		drop()
		return nil, err
	}
	return func() {
		l.sem.Release(1)
		drop()
	}, nil
}

// reconcile copies the server's non-empty fields over the local copy.
func reconcile(local *Asset, server Asset) {
	if server.Type != "" {
		local.Type = server.Type
	}
	if server.URL != "" {
		local.URL = server.URL
	}
	if server.URI != "" {
		local.URI = server.URI
	}
	if server.Prompt != "" {
		local.Prompt = server.Prompt
	}
	if server.SceneID != "" {
		local.SceneID = server.SceneID
	}
}

func (s *AssetSync) refreshAll(ctx context.Context, views []AssetView) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
	defer cancel()
	for _, v := range views {
		if err := v.Refresh(rctx); err != nil {
			s.logger.Warn("asset view refresh failed", zap.Error(err))
		}
	}
}

// ToggleLike flips liked everywhere, then settles on the server's answer.
// On failure the previous value is restored and views re-fetch.
func (s *AssetSync) ToggleLike(ctx context.Context, assetID string) (*LikeResult, error) {
	release, err := s.acquire(ctx, assetID)
	if err != nil {
		return nil, err
	}
	defer release()

	views := s.snapshotViews()
	prev := make(map[int]bool, len(views))
	var next, seen bool
	for i, v := range views {
		a, ok := v.FindAsset(assetID)
		if !ok {
			continue
		}
		if !seen {
			next, seen = !a.Liked, true
		}
		prev[i] = a.Liked
		v.ApplyAsset(assetID, func(a *Asset) { a.Liked = next })
	}

	res, err := s.backend.ToggleLike(ctx, assetID)
	if err != nil {
		for i, liked := range prev {
			liked := liked
			views[i].ApplyAsset(assetID, func(a *Asset) { a.Liked = liked })
		}
		s.logger.Warn("like toggle failed, re-fetching", zap.String("asset", assetID), zap.Error(err))
		s.refreshAll(ctx, views)
		return nil, fmt.Errorf("toggle like %s: %w", assetID, err)
	}

	change := AssetChange{AssetID: assetID, Deleted: res.Deleted}
	if res.Deleted {
		for _, v := range views {
			v.RemoveAsset(assetID)
		}
	} else {
		for _, v := range views {
			v.ApplyAsset(assetID, func(a *Asset) {
				reconcile(a, res.Asset)
				a.Liked = res.Liked
			})
		}
		a := res.Asset
		a.ID, a.Liked = assetID, res.Liked
		change.Asset = &a
	}
	s.broker.Publish(EventAssetsChanged, change)
	return res, nil
}

// RecordDownload bumps the counter everywhere, then settles on the server's
// count. On failure the increment is reverted.
func (s *AssetSync) RecordDownload(ctx context.Context, assetID string) (*DownloadResult, error) {
	release, err := s.acquire(ctx, assetID)
	if err != nil {
		return nil, err
	}
	defer release()

	views := s.snapshotViews()
	var bumped []AssetView
	for _, v := range views {
		if v.ApplyAsset(assetID, func(a *Asset) { a.Downloads++ }) {
			bumped = append(bumped, v)
		}
	}

	res, err := s.backend.IncrementDownload(ctx, assetID)
	if err != nil {
		for _, v := range bumped {
			v.ApplyAsset(assetID, func(a *Asset) {
				if a.Downloads > 0 {
					a.Downloads--
				}
			})
		}
		s.logger.Warn("download count failed", zap.String("asset", assetID), zap.Error(err))
		return nil, fmt.Errorf("record download %s: %w", assetID, err)
	}

	for _, v := range views {
		v.ApplyAsset(assetID, func(a *Asset) {
			reconcile(a, res.Asset)
			a.Downloads = res.Downloads
		})
	}
	a := res.Asset
	a.ID, a.Downloads = assetID, res.Downloads
	s.broker.Publish(EventAssetsChanged, AssetChange{AssetID: assetID, Asset: &a})
	return res, nil
}

// AssetLoader fetches the authoritative contents of an asset list.
type AssetLoader func(ctx context.Context) ([]Asset, error)

// AssetList is a cached list of assets kept eventually consistent by
// re-fetching when the broker reports a change.
type AssetList struct {
	name   string
	load   AssetLoader
	logger *zap.Logger

	mu     sync.Mutex
	assets []Asset
}

func NewAssetList(name string, load AssetLoader, logger *zap.Logger) *AssetList {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetList{name: name, load: load, logger: logger}
}

func (l *AssetList) Name() string { return l.name }

func (l *AssetList) Assets() []Asset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Asset(nil), l.assets...)
}

func (l *AssetList) FindAsset(id string) (Asset, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.assets {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

func (l *AssetList) ApplyAsset(id string, fn func(*Asset)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	found := false
	for i := range l.assets {
		if l.assets[i].ID == id {
			fn(&l.assets[i])
			found = true
		}
	}
	return found
}

func (l *AssetList) RemoveAsset(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.assets[:0]
	found := false
	for _, a := range l.assets {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	l.assets = kept
	return found
}

func (l *AssetList) Refresh(ctx context.Context) error {
	assets, err := l.load(ctx)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", l.name, err)
	}
	l.mu.Lock()
	l.assets = append([]Asset(nil), assets...)
	l.mu.Unlock()
	return nil
}

// Watch re-fetches the list on every asset change until ctx ends. A deleted
// asset is removed right away so it disappears before the fetch lands.
func (l *AssetList) Watch(ctx context.Context, broker *Broker[AssetChange]) {
	events := broker.Subscribe(ctx)
	go func() {
		for ev := range events {
			if ev.Type != EventAssetsChanged {
				continue
			}
			if ev.Payload.Deleted {
				l.RemoveAsset(ev.Payload.AssetID)
			}
			if err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("asset list refresh failed", zap.String("list", l.name), zap.Error(err))
			}
		}
	}()
}

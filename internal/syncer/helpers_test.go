package syncer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/store"
	"github.com/parsascontentcorner/shelfsync/internal/store/memstore"
)

// rawItem stands in for a source's native item
type rawItem struct {
	ID    int
	Title string
}

func toRecord(item rawItem) (models.Record, error) {
	if item.Title == "" {
		return models.Record{}, errors.New("missing title")
	}
	return models.Record{ExternalID: strconv.Itoa(item.ID), Title: item.Title, Artist: "Artist " + strconv.Itoa(item.ID)}, nil
}

type fakeLister struct {
	collection    []rawItem
	wishlist      []rawItem
	collectionErr error
	wishlistErr   error
	calls         atomic.Int32
}

func (f *fakeLister) FetchAllCollection(ctx context.Context) ([]rawItem, error) {
	f.calls.Add(1)
	return f.collection, f.collectionErr
}

func (f *fakeLister) FetchAllWishlist(ctx context.Context) ([]rawItem, error) {
	return f.wishlist, f.wishlistErr
}

// flakyRepo fails upserts of selected keys a number of times before
// delegating; a negative count fails forever.
type flakyRepo struct {
	store.Repository[models.Record]

	mu       sync.Mutex
	failures map[string]int
	attempts map[string]int
}

func newFlakyRepo(failures map[string]int) *flakyRepo {
	return &flakyRepo{
		Repository: memstore.New[models.Record](),
		failures:   failures,
		attempts:   map[string]int{},
	}
}

func (r *flakyRepo) Upsert(ctx context.Context, e models.Record) (models.Record, error) {
	r.mu.Lock()
	r.attempts[e.ExternalID]++
	remaining, ok := r.failures[e.ExternalID]
	if ok && remaining != 0 {
		if remaining > 0 {
			r.failures[e.ExternalID] = remaining - 1
		}
		r.mu.Unlock()
		return e, errors.New("connection refused")
	}
	r.mu.Unlock()
	return r.Repository.Upsert(ctx, e)
}

func (r *flakyRepo) attemptsFor(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[key]
}

// blockingRunner holds a pass open until release is closed
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	once    sync.Once
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingRunner) Run(ctx context.Context) (Summary, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return Summary{Records: 1, Succeeded: 1}, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []models.Service
	finished []error
}

func (o *recordingObserver) SyncStarted(service models.Service) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, service)
}

func (o *recordingObserver) SyncFinished(service models.Service, summary Summary, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, err)
}

func newTracker() (*StatusTracker, *memstore.Table[models.SyncStatus]) {
	repo := memstore.New[models.SyncStatus]()
	return NewStatusTracker(repo, nil), repo
}

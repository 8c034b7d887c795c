package indexstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var errBackend = errors.New("backend down")

type failingBackend struct {
	loadErr  error
	storeErr error
	release  chan struct{}
}

func (b *failingBackend) LoadKeys(ctx context.Context) ([]string, error) {
	return nil, b.loadErr
}

func (b *failingBackend) StoreKeys(ctx context.Context, keys []string) error {
	if b.release != nil {
		<-b.release
	}
	return b.storeErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type KeyIndexSuite struct {
	suite.Suite
	ctx     context.Context
	backend *SimpleBackend
	index   *KeyIndex
}

func (s *KeyIndexSuite) SetupTest() {
	s.ctx = context.Background()
	s.backend = NewSimpleBackend()
	s.index = NewKeyIndex(s.backend, WithLogger(quietLogger()))
}

func (s *KeyIndexSuite) TestRecordIsUniqueAndOrdered() {
	s.True(s.index.Record("b"))
	s.True(s.index.Record("a"))
	s.False(s.index.Record("b"))
	s.True(s.index.Record("c"))

	s.Equal([]string{"b", "a", "c"}, s.index.List(""))
	s.Equal(3, s.index.Len())
}

func (s *KeyIndexSuite) TestForget() {
	s.index.Record("a")
	s.index.Record("b")
	s.index.Record("c")

	s.True(s.index.Forget("b"))
	s.False(s.index.Forget("b"))
	s.False(s.index.Forget("never"))

	s.Equal([]string{"a", "c"}, s.index.List(""))
	s.False(s.index.Contains("b"))
	s.True(s.index.Contains("c"))
}

func (s *KeyIndexSuite) TestListFilterAndCopy() {
	s.index.Record("bot.main")
	s.index.Record("bot.mainMenu")
	s.index.Record("nintendo.systems")

	s.Equal([]string{"bot.main", "bot.mainMenu"}, s.index.List("bot."))
	s.Equal([]string{"bot.mainMenu"}, s.index.List("Menu"))
	s.Empty(s.index.List("sega"))

	listed := s.index.List("")
	listed[0] = "mutated"
	s.Equal("bot.main", s.index.List("")[0])
}

func (s *KeyIndexSuite) TestPersistAndLoad() {
	s.index.Record("a")
	s.index.Record("b")

	task := s.index.Persist(s.ctx)
	s.Require().NoError(task.Wait(s.ctx))
	s.NoError(task.Err())

	restored := NewKeyIndex(s.backend, WithLogger(quietLogger()))
	restored.Load(s.ctx)
	s.Equal([]string{"a", "b"}, restored.List(""))
}

func (s *KeyIndexSuite) TestLoadDropsDuplicates() {
	backend := NewSimpleBackend("a", "b", "a", "", "c")
	ix := NewKeyIndex(backend, WithLogger(quietLogger()))
	ix.Load(s.ctx)
	s.Equal([]string{"a", "b", "c"}, ix.List(""))
}

func (s *KeyIndexSuite) TestSync() {
	s.index.Record("x")
	s.Require().NoError(s.index.Sync(s.ctx))

	keys, err := s.backend.LoadKeys(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"x"}, keys)
}

func TestKeyIndexSuite(t *testing.T) {
	suite.Run(t, new(KeyIndexSuite))
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	ix := NewKeyIndex(&failingBackend{loadErr: errBackend}, WithLogger(quietLogger()))
	ix.Record("stale")
	ix.Load(context.Background())

	assert.Empty(t, ix.List(""))
	assert.True(t, ix.Record("fresh"))
}

func TestPersistDoesNotBlockCaller(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{release: make(chan struct{})}
	ix := NewKeyIndex(backend, WithLogger(quietLogger()))
	ix.Record("a")

	task := ix.Persist(ctx)

	select {
	case <-task.Done():
		t.Fatal("task finished before the backend returned")
	default:
	}
	assert.NoError(t, task.Err(), "Err is nil while in flight")

	close(backend.release)
	require.NoError(t, task.Wait(ctx))
	require.NoError(t, ix.Wait(ctx))
}

func TestPersistFailureIsReported(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var handled []error
	ix := NewKeyIndex(&failingBackend{storeErr: errBackend},
		WithLogger(quietLogger()),
		WithErrorHandler(func(err error) {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, err)
		}),
	)
	ix.Record("a")

	task := ix.Persist(ctx)
	err := task.Wait(ctx)
	assert.True(t, errors.Is(err, errBackend))

	select {
	case got := <-ix.Errors():
		assert.True(t, errors.Is(got, errBackend))
	case <-time.After(time.Second):
		t.Fatal("no error delivered on Errors()")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, handled, 1)
}

func TestErrorsChannelDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	ix := NewKeyIndex(&failingBackend{storeErr: errBackend}, WithLogger(quietLogger()), WithErrorBuffer(1))

	for i := 0; i < 3; i++ {
		_ = ix.Persist(ctx).Wait(ctx)
	}
	require.NoError(t, ix.Wait(ctx))

	assert.Len(t, ix.Errors(), 1)
}

func TestPersistSurvivesCallerCancellation(t *testing.T) {
	backend := NewSimpleBackend()
	ix := NewKeyIndex(backend, WithLogger(quietLogger()))
	ix.Record("a")

	ctx, cancel := context.WithCancel(context.Background())
	task := ix.Persist(ctx)
	cancel()

	require.NoError(t, task.Wait(context.Background()))
	assert.Equal(t, 1, backend.Writes())
}

func TestWaitHonoursContext(t *testing.T) {
	backend := &failingBackend{release: make(chan struct{})}
	ix := NewKeyIndex(backend, WithLogger(quietLogger()))
	ix.Persist(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ix.Wait(ctx), context.DeadlineExceeded)

	close(backend.release)
	require.NoError(t, ix.Wait(context.Background()))
}

func TestWaitWhilePersisting(t *testing.T) {
	ctx := context.Background()
	backend := NewSimpleBackend()
	ix := NewKeyIndex(backend, WithLogger(quietLogger()))

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < perWriter; n++ {
				ix.Record(fmt.Sprintf("k%d.%d", w, n))
				ix.Persist(ctx)
			}
		}(w)
	}

	stop := make(chan struct{})
	waited := make(chan struct{})
	go func() {
		defer close(waited)
		for {
			select {
			case <-stop:
				return
			default:
				assert.NoError(t, ix.Wait(ctx))
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-waited

	require.NoError(t, ix.Wait(ctx))
	assert.Equal(t, writers*perWriter, ix.Len())
	assert.Equal(t, writers*perWriter, backend.Writes())
}

func TestWaitCoversEarlierPersists(t *testing.T) {
	backend := &failingBackend{release: make(chan struct{})}
	ix := NewKeyIndex(backend, WithLogger(quietLogger()))
	first := ix.Persist(context.Background())
	second := ix.Persist(context.Background())

	done := make(chan error, 1)
	go func() { done <- ix.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned before the persists finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(backend.release)
	require.NoError(t, <-done)
	assert.True(t, isClosed(first.Done()))
	assert.True(t, isClosed(second.Done()))
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

package tile

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/tilemesh/server/internal/tilegrid"
)

// ErrNoData is returned by load functions when the source has nothing
// at the requested coordinate. The tile settles to Empty instead of
// Error so callers can tell "legitimately blank" from "failed".
var ErrNoData = errors.New("tile: no data at coordinate")

// LoadFunc fetches and decodes the raster image for a coordinate.
// Implementations report missing data with ErrNoData.
type LoadFunc func(ctx context.Context, c tilegrid.TileCoord) (image.Image, error)

// Tile is one pyramid tile moving through the load lifecycle. The two
// implementations are ImageTile (plain fetch) and reproj.Tile
// (composited from source tiles in another projection).
type Tile interface {
	Coord() tilegrid.TileCoord
	Key() string
	State() State
	// Load starts the tile's work. Only Idle tiles react; every other
	// state makes it a no-op.
	Load()
	// Image returns the decoded raster once the tile is Loaded, nil
	// otherwise.
	Image() image.Image
	// Err returns the cause of an Error state, nil otherwise.
	Err() error
	Subscribe(fn func()) (cancel func())
	// Dispose releases the tile's resources. A Loading tile is
	// abandoned and settles to Abort.
	Dispose()
}

// ImageTile is a plain raster tile: its image comes straight from a
// load function.
type ImageTile struct {
	Notifier

	coord tilegrid.TileCoord
	key   string
	load  LoadFunc

	mu     sync.Mutex
	state  State
	img    image.Image
	err    error
	cancel context.CancelFunc
}

// NewImage returns an Idle tile that will fetch its image with load.
func NewImage(c tilegrid.TileCoord, load LoadFunc) *ImageTile {
	return &ImageTile{coord: c, key: c.Key(), load: load, state: Idle}
}

// Coord returns the tile's coordinate.
func (t *ImageTile) Coord() tilegrid.TileCoord { return t.coord }

// Key returns the tile's cache key.
func (t *ImageTile) Key() string { return t.key }

// State returns the current load state.
func (t *ImageTile) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Image returns the decoded raster once Loaded, nil otherwise.
func (t *ImageTile) Image() image.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Loaded {
		return nil
	}
	return t.img
}

// Err returns the load failure when the tile is in Error state.
func (t *ImageTile) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Load starts the fetch. Idempotent: only an Idle tile reacts.
func (t *ImageTile) Load() {
	t.mu.Lock()
	if t.state != Idle {
		t.mu.Unlock()
		return
	}
	t.state = Loading
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	load := t.load
	coord := t.coord
	t.mu.Unlock()
	t.Notify()

	go func() {
		img, err := load(ctx, coord)
		t.settle(img, err)
	}()
}

func (t *ImageTile) settle(img image.Image, err error) {
	t.mu.Lock()
	if t.state != Loading {
		// Disposed mid-flight; the Abort transition already notified.
		t.mu.Unlock()
		return
	}
	switch {
	case err == nil && img != nil:
		t.state = Loaded
		t.img = img
	case errors.Is(err, ErrNoData):
		t.state = Empty
	default:
		t.state = Error
		if err == nil {
			err = errors.New("tile: load returned no image")
		}
		t.err = err
	}
	t.cancel = nil
	t.mu.Unlock()
	t.Notify()
}

// MarkAbort abandons an Idle tile so the scheduler skips it. Tiles in
// any other state are left alone.
func (t *ImageTile) MarkAbort() {
	t.mu.Lock()
	if t.state != Idle {
		t.mu.Unlock()
		return
	}
	t.state = Abort
	t.mu.Unlock()
	t.Notify()
}

// Reset returns an Error tile to Idle so it can be enqueued again.
func (t *ImageTile) Reset() {
	t.mu.Lock()
	if t.state != Error {
		t.mu.Unlock()
		return
	}
	t.state = Idle
	t.err = nil
	t.mu.Unlock()
	t.Notify()
}

// Dispose releases the image and cancels an in-flight fetch. A
// Loading tile settles to Abort.
func (t *ImageTile) Dispose() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.img = nil
	aborted := false
	if t.state == Loading {
		t.state = Abort
		aborted = true
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if aborted {
		t.Notify()
	}
}

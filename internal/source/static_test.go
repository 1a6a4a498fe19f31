package source

import (
	"context"
	"image/color"
	"testing"

	"github.com/tilemesh/server/internal/tilegrid"
)

func TestSolid_Fetch(t *testing.T) {
	s := NewSolid(color.RGBA{R: 10, G: 20, B: 30, A: 255}, 16)

	img, err := s.Fetch(context.Background(), tilegrid.NewTileCoord(3, 1, 2))
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if got := img.Bounds().Dx(); got != 16 {
		t.Fatalf("unexpected width: got %d want 16", got)
	}
	r, g, b, _ := img.At(7, 7).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 {
		t.Fatalf("unexpected color: got (%d,%d,%d)", r>>8, g>>8, b>>8)
	}

	// Every coordinate serves the identical image.
	again, err := s.Fetch(context.Background(), tilegrid.NewTileCoord(9, 100, 200))
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if again != img {
		t.Fatal("expected the same image for every coordinate")
	}
}

func TestDebug_Fetch(t *testing.T) {
	d := NewDebug(64)

	img, err := d.Fetch(context.Background(), tilegrid.NewTileCoord(4, 5, 6))
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if got := img.Bounds().Dx(); got != 64 {
		t.Fatalf("unexpected width: got %d want 64", got)
	}

	// The border is stroked lighter than the fill.
	br, _, _, _ := img.At(0, 32).RGBA()
	fr, _, _, _ := img.At(16, 16).RGBA()
	if br <= fr {
		t.Fatalf("expected border brighter than fill: border %d fill %d", br>>8, fr>>8)
	}
}

func TestDebug_DefaultSize(t *testing.T) {
	img, err := NewDebug(0).Fetch(context.Background(), tilegrid.NewTileCoord(0, 0, 0))
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if got := img.Bounds().Dx(); got != tilegrid.DefaultTileSize {
		t.Fatalf("unexpected width: got %d want %d", got, tilegrid.DefaultTileSize)
	}
}

func TestLayer_LoadFunc(t *testing.T) {
	s := NewSolid(color.White, 8)
	l := Layer{Fetcher: s}

	img, err := l.LoadFunc()(context.Background(), tilegrid.NewTileCoord(1, 1, 1))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if img == nil {
		t.Fatal("expected an image")
	}
}

package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

func TestNewSourcePolygon(t *testing.T) {
	tests := []struct {
		name    string
		pts     []SourcePoint
		wantErr bool
	}{
		{"four points", make([]SourcePoint, 4), false},
		{"three points", make([]SourcePoint, 3), true},
		{"five points", make([]SourcePoint, 5), true},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSourcePolygon(tt.pts)
			if tt.wantErr {
				if !errors.Is(err, scanerr.ErrInvalidPolygon) {
					t.Errorf("got %v, want ErrInvalidPolygon", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewDisplayPolygon_WrongCount(t *testing.T) {
	_, err := NewDisplayPolygon(make([]DisplayPoint, 6))
	if !errors.Is(err, scanerr.ErrInvalidPolygon) {
		t.Errorf("got %v, want ErrInvalidPolygon", err)
	}
}

func TestArea(t *testing.T) {
	square := SourcePolygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	if got := square.Area(); got != 100 {
		t.Errorf("square area: got %f, want 100", got)
	}

	line := SourcePolygon{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 10}, {X: 2, Y: 2}}
	if got := line.Area(); got != 0 {
		t.Errorf("line area: got %f, want 0", got)
	}
}

func TestIsConvex(t *testing.T) {
	tests := []struct {
		name string
		poly SourcePolygon
		want bool
	}{
		{"square", SourcePolygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, true},
		{"perspective trapezoid", SourcePolygon{{20, 10}, {80, 15}, {95, 90}, {5, 85}}, true},
		{"counter-clockwise square", SourcePolygon{{0, 0}, {0, 10}, {10, 10}, {10, 0}}, true},
		{"bow tie", SourcePolygon{{0, 0}, {10, 0}, {0, 10}, {10, 10}}, false},
		{"concave dart", SourcePolygon{{0, 0}, {10, 0}, {3, 3}, {0, 10}}, false},
		{"collinear", SourcePolygon{{0, 0}, {5, 0}, {10, 0}, {0, 10}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.poly.IsConvex(); got != tt.want {
				t.Errorf("IsConvex: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFinite(t *testing.T) {
	ok := SourcePolygon{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	if !ok.IsFinite() {
		t.Error("finite polygon reported non-finite")
	}

	bad := ok
	bad[2].X = math.NaN()
	if bad.IsFinite() {
		t.Error("NaN not detected")
	}

	bad = ok
	bad[1].Y = math.Inf(1)
	if bad.IsFinite() {
		t.Error("Inf not detected")
	}
}

func TestOrderCorners(t *testing.T) {
	want := SourcePolygon{{20, 10}, {80, 15}, {95, 90}, {5, 85}}

	tests := []struct {
		name string
		pts  []SourcePoint
	}{
		{"already ordered", []SourcePoint{want[0], want[1], want[2], want[3]}},
		{"reversed", []SourcePoint{want[3], want[2], want[1], want[0]}},
		{"shuffled", []SourcePoint{want[2], want[0], want[3], want[1]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OrderCorners(tt.pts)
			if err != nil {
				t.Fatalf("OrderCorners: %v", err)
			}
			if got != want {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}

	if _, err := OrderCorners(make([]SourcePoint, 3)); !errors.Is(err, scanerr.ErrInvalidPolygon) {
		t.Errorf("three points: got %v, want ErrInvalidPolygon", err)
	}
}

func TestInsetPolygon(t *testing.T) {
	poly := InsetPolygon(Size{Width: 1000, Height: 500}, 0.1, 0.2)
	want := SourcePolygon{{100, 100}, {900, 100}, {900, 400}, {100, 400}}
	if poly != want {
		t.Errorf("got %+v, want %+v", poly, want)
	}
}

func TestParseCorner(t *testing.T) {
	tests := []struct {
		in      string
		want    Corner
		wantErr bool
	}{
		{"top-left", TopLeft, false},
		{"bottom-right", BottomRight, false},
		{"3", BottomLeft, false},
		{"middle", 0, true},
		{"4", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCorner(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

package preprocess

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func createSolidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocess_ShapeAndSize(t *testing.T) {
	img := createSolidImage(3000, 4000/10, color.RGBA{255, 0, 0, 255})

	tensor, err := Preprocess(img)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	if len(tensor.Data) != 3*256*256 {
		t.Errorf("len(Data): got %d, want %d", len(tensor.Data), 3*256*256)
	}
	if tensor.OriginalSize.Width != 3000 || tensor.OriginalSize.Height != 400 {
		t.Errorf("OriginalSize: got %+v, want 3000x400", tensor.OriginalSize)
	}

	shape := tensor.Shape()
	want := []int64{1, 3, 256, 256}
	for i := range want {
		if shape[i] != want[i] {
			t.Fatalf("Shape: got %v, want %v", shape, want)
		}
	}
}

func TestPreprocess_PlanarNormalized(t *testing.T) {
	img := createSolidImage(64, 64, color.RGBA{255, 51, 0, 255})

	tensor, err := Preprocess(img)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	plane := 256 * 256
	checks := []struct {
		name  string
		index int
		want  float32
	}{
		{"red plane first pixel", 0, 1.0},
		{"red plane last pixel", plane - 1, 1.0},
		{"green plane", plane + 1234, 0.2},
		{"blue plane", 2*plane + 999, 0.0},
	}

	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if got := tensor.Data[c.index]; math.Abs(float64(got-c.want)) > 1e-6 {
				t.Errorf("got %f, want %f", got, c.want)
			}
		})
	}
}

func TestPreprocess_HWCtoCHWOrdering(t *testing.T) {
	// Left half black, right half white: in CHW the first half of every row
	// of every plane is 0 and the far right is 1.
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			if x >= 128 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}

	tensor, err := Preprocess(img)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	plane := 256 * 256
	for c := 0; c < 3; c++ {
		left := tensor.Data[c*plane+100*256+10]
		right := tensor.Data[c*plane+100*256+250]
		if left != 0 || right != 1 {
			t.Errorf("plane %d: left=%f right=%f, want 0 and 1", c, left, right)
		}
	}
}

func TestPreprocess_AlphaDropped(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 255, 255, 255, 0
	}

	tensor, err := Preprocess(img)
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}
	if len(tensor.Data) != 3*256*256 {
		t.Fatalf("alpha must not add a fourth plane, got %d values", len(tensor.Data))
	}
}

func TestPreprocess_IndependentAllocations(t *testing.T) {
	img := createSolidImage(32, 32, color.Gray{128})

	a, err := Preprocess(img)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Preprocess(img)
	if err != nil {
		t.Fatal(err)
	}

	a.Data[0] = 42
	if b.Data[0] == 42 {
		t.Error("tensors share backing storage")
	}
}

func TestPreprocess_InvalidInput(t *testing.T) {
	if _, err := Preprocess(nil); err == nil {
		t.Error("nil image should fail")
	}
	if _, err := Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 5))); err == nil {
		t.Error("empty image should fail")
	}
}

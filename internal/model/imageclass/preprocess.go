package imageclass

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const defaultImageSize = 224

// preprocessor mirrors the fields of a preprocessor_config.json that matter
// for a resize-rescale-normalize pipeline.
type preprocessor struct {
	Width         int
	Height        int
	Mean          [3]float32
	Std           [3]float32
	RescaleFactor float32
}

func defaultPreprocessor() preprocessor {
	return preprocessor{
		Width:         defaultImageSize,
		Height:        defaultImageSize,
		Mean:          [3]float32{0.5, 0.5, 0.5},
		Std:           [3]float32{0.5, 0.5, 0.5},
		RescaleFactor: 1.0 / 255,
	}
}

type preprocessorFile struct {
	Size          json.RawMessage `json:"size"`
	ImageMean     []float32       `json:"image_mean"`
	ImageStd      []float32       `json:"image_std"`
	RescaleFactor *float32        `json:"rescale_factor"`
}

type sizeObject struct {
	Height       int `json:"height"`
	Width        int `json:"width"`
	ShortestEdge int `json:"shortest_edge"`
}

// loadPreprocessor reads path; a missing file yields the defaults.
func loadPreprocessor(path string) (preprocessor, error) {
	p := defaultPreprocessor()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	var f preprocessorFile
	if err := json.Unmarshal(b, &f); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Size) > 0 {
		var n int
		var obj sizeObject
		switch {
		case json.Unmarshal(f.Size, &n) == nil && n > 0:
			p.Width, p.Height = n, n
		case json.Unmarshal(f.Size, &obj) == nil:
			if obj.Height > 0 && obj.Width > 0 {
				p.Width, p.Height = obj.Width, obj.Height
			} else if obj.ShortestEdge > 0 {
				p.Width, p.Height = obj.ShortestEdge, obj.ShortestEdge
			}
		}
	}
	if len(f.ImageMean) == 3 {
		copy(p.Mean[:], f.ImageMean)
	}
	if len(f.ImageStd) == 3 {
		copy(p.Std[:], f.ImageStd)
	}
	if f.RescaleFactor != nil && *f.RescaleFactor > 0 {
		p.RescaleFactor = *f.RescaleFactor
	}
	return p, nil
}

// tensor decodes an encoded image and returns it as a normalized NCHW
// float32 buffer together with its shape.
func (p preprocessor) tensor(data []byte) ([]float32, []int64, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("decode image: %w", err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	plane := p.Width * p.Height
	out := make([]float32, 3*plane)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			i := dst.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[i+c]) * p.RescaleFactor
				out[c*plane+y*p.Width+x] = (v - p.Mean[c]) / p.Std[c]
			}
		}
	}
	return out, []int64{1, 3, int64(p.Height), int64(p.Width)}, nil
}

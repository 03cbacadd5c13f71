package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

var imageExts = []string{".jpg", ".jpeg", ".png", ".bmp"}

// ImageFiles returns the image file names in dir, sorted.
func ImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExts, strings.ToLower(filepath.Ext(e.Name()))) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// LoadDir reads every image in dir, in file name order, as a Recording of
// square frames. The progress callback, if set, is called after each file.
func LoadDir(dir string, size int, progress func()) (*Recording, error) {
	names, err := ImageFiles(dir)
	if err != nil {
		return nil, err
	}

	rec := &Recording{Started: time.Now()}
	for _, name := range names {
		img := gocv.IMRead(filepath.Join(dir, name), gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			rec.Close()
			return nil, fmt.Errorf("decode %s", name)
		}
		square, err := Square(img, size)
		img.Close()
		if err != nil {
			rec.Close()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rec.Frames = append(rec.Frames, square)
		if progress != nil {
			progress()
		}
	}
	rec.Elapsed = time.Since(rec.Started)
	return rec, nil
}

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/sunshineplan/upscale"
)

var supported = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|tiff?|bmp|webp|exr|jp2|j2k)$`)

// status rewrites the current terminal line.
type status struct {
	width int
}

func (s *status) print(m string) {
	if *quiet {
		return
	}
	fmt.Fprintf(os.Stdout, "\r%s\r%s", strings.Repeat(" ", s.width), m)
	s.width = runewidth.StringWidth(m)
}

func (s *status) clear() {
	if !*quiet {
		fmt.Fprintf(os.Stdout, "\r%s\r", strings.Repeat(" ", s.width))
	}
	s.width = 0
}

// loadImages walks root and returns every supported image in walk order.
func loadImages(root string, pdf bool) (imgs []upscale.Source) {
	var message atomic.Pointer[string]
	var s status
	var wg sync.WaitGroup
	done := make(chan struct{})
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if m := message.Load(); m != nil {
					s.print(*m)
				}
			}
		}
	}()
	var dir string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			dir = path
		} else if supported.MatchString(d.Name()) || (pdf && strings.EqualFold(filepath.Ext(d.Name()), ".pdf")) {
			imgs = append(imgs, upscale.Source{Dir: filepath.Dir(path), Name: d.Name()})
		}
		m := fmt.Sprintf("Found images: %d, Scanning directory %s", len(imgs), dir)
		message.Store(&m)
		return nil
	})
	close(done)
	wg.Wait()
	s.clear()
	return
}

package convert

import (
	"context"
	"runtime"
	"sync"
)

// Step is one operation applied to a file, typically Service.Check or
// Service.Apply.
type Step func(ctx context.Context, f File) File

// Run applies fn to every file with at most workers running at once and
// returns the results in input order. Files not started before ctx is
// cancelled are returned unchanged and Run reports ctx.Err().
func (s *Service) Run(ctx context.Context, files []File, workers int, fn Step) ([]File, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]File, len(files))
	copy(out, files)
	if s.Metrics != nil {
		s.Metrics.SetTotalFiles(int64(len(files)))
		s.Metrics.Start()
		defer s.Metrics.Stop()
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
loop:
	for i := range files {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			res := fn(ctx, files[i])
			out[i] = res
			if s.Metrics != nil {
				s.Metrics.AddFile(res.State.String(), res.Size)
			}
			if s.Progress != nil {
				mu.Lock()
				s.Progress(i, res)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return out, ctx.Err()
}

// Summary counts files per state.
func Summary(files []File) map[State]int {
	m := make(map[State]int)
	for _, f := range files {
		m[f.State]++
	}
	return m
}

// Package loadtest measures how a document store holds up when many clients
// load the full project list at once.
//
// A load is what FetchAll does: list the projects collection, then list the
// todos collection of every project. Seed fills a store with realistic
// projects and todos; Run starts N concurrent clients each performing a number
// of loads and reports latency percentiles.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sitebook/sitebook/internal/schema"
	"github.com/sitebook/sitebook/internal/store"
	"github.com/sitebook/sitebook/internal/types"
)

// Dataset describes what Seed wrote.
type Dataset struct {
	ProjectIDs []string
	Todos      int
}

// LatencyStats captures the latency of full loads.
type LatencyStats struct {
	Min        time.Duration `json:"min"`
	Max        time.Duration `json:"max"`
	Mean       time.Duration `json:"mean"`
	P50        time.Duration `json:"p50"`
	P95        time.Duration `json:"p95"`
	P99        time.Duration `json:"p99"`
	TotalLoads int           `json:"total_loads"`
	Errors     int           `json:"errors"`
}

// Seed writes numProjects projects with todosPerProject todos each. Todo
// statuses cycle through the workflow so progress values vary.
func Seed(ctx context.Context, s store.Store, numProjects, todosPerProject int) (*Dataset, error) {
	ds := &Dataset{ProjectIDs: make([]string, 0, numProjects)}
	rng := rand.New(rand.NewSource(42))
	statuses := types.TodoStatuses()
	trades := types.TodoTypes()
	base := time.Now().AddDate(0, -6, 0)

	for i := 0; i < numProjects; i++ {
		cost := float64(rng.Intn(500000)) + 10000
		p := types.NewProject(types.ProjectInput{
			Name:       fmt.Sprintf("Load Project %04d", i),
			Status:     string(types.ProjectActive),
			FinishDate: base.AddDate(0, 0, rng.Intn(365)),
			Cost:       &cost,
		})
		id, err := s.CreateDocument(ctx, schema.ProjectsCollection, schema.ProjectDocument(p))
		if err != nil {
			return nil, fmt.Errorf("failed to create project %d: %w", i, err)
		}
		ds.ProjectIDs = append(ds.ProjectIDs, id)

		for j := 0; j < todosPerProject; j++ {
			t := types.NewTodo(types.TodoInput{
				ProjectID:  id,
				Title:      fmt.Sprintf("Task %d.%d", i, j),
				Type:       string(trades[(i+j)%len(trades)].Type),
				Status:     string(statuses[rng.Intn(len(statuses))]),
				FinishDate: base.AddDate(0, 0, rng.Intn(365)),
			})
			if _, err := s.CreateDocument(ctx, schema.TodosPath(id), schema.TodoDocument(t)); err != nil {
				return nil, fmt.Errorf("failed to create todo %d.%d: %w", i, j, err)
			}
			ds.Todos++
		}
	}
	return ds, nil
}

// Load lists every project and its todos once and returns the number of
// documents read.
func Load(ctx context.Context, s store.Store) (int, error) {
	projects, err := s.ListDocuments(ctx, schema.ProjectsCollection)
	if err != nil {
		return 0, err
	}
	n := len(projects)
	for _, p := range projects {
		todos, err := s.ListDocuments(ctx, schema.TodosPath(p.ID))
		if err != nil {
			return n, err
		}
		n += len(todos)
	}
	return n, nil
}

// Run starts numClients concurrent clients, each performing loadsPerClient
// full loads, and returns the latency of every successful load.
func Run(ctx context.Context, s store.Store, numClients, loadsPerClient int) (*LatencyStats, error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		errCount  int
	)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]time.Duration, 0, loadsPerClient)
			failed := 0
			for j := 0; j < loadsPerClient; j++ {
				if ctx.Err() != nil {
					break
				}
				start := time.Now()
				if _, err := Load(ctx, s); err != nil {
					failed++
					continue
				}
				local = append(local, time.Since(start))
			}
			mu.Lock()
			durations = append(durations, local...)
			errCount += failed
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(durations) == 0 {
		return nil, fmt.Errorf("no load completed (%d errors)", errCount)
	}
	stats := computeLatencyStats(durations)
	stats.Errors = errCount
	return stats, nil
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(sorted)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		TotalLoads: len(sorted),
	}
}

// Print writes the statistics in a fixed layout.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Loads:   %d\n", s.TotalLoads)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

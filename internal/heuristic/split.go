package heuristic

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/slothy-opt/slothy/internal/asmir"
	"github.com/slothy-opt/slothy/internal/dfg"
)

// OptimizeSplit implements spec.md §4.5's split heuristic: rather than
// solving one combinatorial problem over the whole (possibly large) body,
// it walks non-overlapping chunks of split_heuristic.window_size
// instructions, optimizing each independently with renaming and
// reordering frozen at the chunk boundary (each chunk's own DFG has no
// visibility past its own instructions, which is exactly "frozen at the
// boundary": a chunk can never reorder or rename across a line it cannot
// see). This sliding-by-whole-window approach is a deliberate
// simplification of the literal overlapping-window description — the
// window never revisits instructions once a later chunk has consumed
// them — recorded as such in DESIGN.md.
//
// Each chunk first gets a frozen "dry pass" (AllowReordering=false,
// AllowRenaming=false) to measure how many stalls the original order
// already needs; the real search for that chunk then only replaces it if
// it does strictly better, bounded by split_heuristic.abort_cycle_at so a
// pathological chunk can't stall the whole pass.
// OptimizeSplit returns the reordered listing plus, when
// VisualizeStalls/VisualizeUnits request it, one annotation comment per
// returned instruction (spec.md §6); the comment slice is nil when neither
// flag is set.
func (d *Driver) OptimizeSplit(ctx context.Context, instrs []*asmir.Instruction, p Params) ([]*asmir.Instruction, []string, error) {
	regionStart, regionEnd := p.SplitHeuristic.RegionStart, p.SplitHeuristic.RegionEnd
	if regionEnd <= regionStart || regionEnd > len(instrs) {
		regionStart, regionEnd = 0, len(instrs)
	}
	region := instrs[regionStart:regionEnd]

	repeat := p.SplitHeuristic.Repeat
	if repeat < 1 {
		repeat = 1
	}
	for i := 0; i < repeat; i++ {
		var err error
		region, err = d.splitPass(ctx, region, p)
		if err != nil {
			return nil, nil, err
		}
	}

	out := make([]*asmir.Instruction, 0, len(instrs))
	out = append(out, instrs[:regionStart]...)
	out = append(out, region...)
	out = append(out, instrs[regionEnd:]...)

	var comments []string
	if p.SplitHeuristic.VisualizeStalls || p.SplitHeuristic.VisualizeUnits {
		comments = make([]string, len(out))
		regionComments := d.annotateSplit(ctx, region, p)
		copy(comments[regionStart:regionEnd], regionComments)
	}
	return out, comments, nil
}

// annotateSplit builds one comment per instruction in a finally-settled
// chunk layout: each chunk's own re-measured stall count
// (VisualizeStalls), and/or each instruction's assigned execution unit(s)
// (VisualizeUnits).
func (d *Driver) annotateSplit(ctx context.Context, instrs []*asmir.Instruction, p Params) []string {
	window := splitWindow(p.SplitHeuristic, len(instrs))
	bounds := chunkBounds(len(instrs), window)
	comments := make([]string, len(instrs))
	for _, b := range bounds {
		start, end := b[0], b[1]
		chunk := instrs[start:end]
		var stalls int
		if p.SplitHeuristic.VisualizeStalls {
			stalls, _ = d.dryPassStalls(ctx, chunk, p)
		}
		for i := start; i < end; i++ {
			var parts []string
			if p.SplitHeuristic.VisualizeStalls {
				parts = append(parts, fmt.Sprintf("chunk_stalls=%d", stalls))
			}
			if p.SplitHeuristic.VisualizeUnits {
				parts = append(parts, fmt.Sprintf("units=%v", d.Target.Units(instrs[i])))
			}
			comments[i] = "// " + strings.Join(parts, " ")
		}
	}
	return comments
}

// splitPass runs one chunked optimization pass over instrs: it computes the
// chunk boundaries, visits them in the order Random/BottomToTop select, and
// finishes with an OptimizeSeam pass over every chunk boundary when
// requested.
func (d *Driver) splitPass(ctx context.Context, instrs []*asmir.Instruction, p Params) ([]*asmir.Instruction, error) {
	window := splitWindow(p.SplitHeuristic, len(instrs))
	bounds := chunkBounds(len(instrs), window)
	order := chunkOrder(len(bounds), p.SplitHeuristic)

	out := make([]*asmir.Instruction, len(instrs))
	for _, ci := range order {
		start, end := bounds[ci][0], bounds[ci][1]
		chunk := instrs[start:end]

		baselineStalls, baselineErr := d.dryPassStalls(ctx, chunk, p)
		optimized, stalls, err := d.optimizeChunk(ctx, chunk, p)
		switch {
		case err != nil && !errors.Is(err, ErrSearchExhausted):
			return nil, err
		case err != nil:
			copy(out[start:end], chunk)
		case baselineErr == nil && stalls >= baselineStalls:
			copy(out[start:end], chunk)
		case p.SplitHeuristic.AbortCycleAt > 0 && stalls > p.SplitHeuristic.AbortCycleAt:
			d.Log.Debugf("heuristic: split chunk [%d:%d] exceeded abort_cycle_at, keeping original", start, end)
			copy(out[start:end], chunk)
		default:
			copy(out[start:end], optimized)
		}
	}

	if p.SplitHeuristic.OptimizeSeam {
		out = d.optimizeSeams(ctx, out, bounds, p)
	}
	return out, nil
}

// splitWindow sizes the chunking window: WindowSize (split_heuristic_chunks)
// takes precedence; otherwise Factor divides the listing into that many
// equal slices (spec.md §6's split_heuristic_factor).
func splitWindow(cfg SplitParams, total int) int {
	if cfg.WindowSize > 0 {
		return cfg.WindowSize
	}
	if cfg.Factor > 0 {
		w := total / cfg.Factor
		if w > 0 {
			return w
		}
	}
	return total
}

func chunkBounds(total, window int) [][2]int {
	if window <= 0 {
		window = total
	}
	var bounds [][2]int
	for start := 0; start < total; start += window {
		end := start + window
		if end > total {
			end = total
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}

// chunkOrder returns the visiting order over n chunks: top-to-bottom by
// default, reversed when BottomToTop is set, and deterministically
// shuffled when Random is set (Random takes precedence over BottomToTop).
// splitPass reads every chunk from the pass's input and writes it back by
// its absolute bounds, so no chunk sees another chunk's result within a
// pass and the visiting order does not change the pass's output.
func chunkOrder(n int, cfg SplitParams) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	switch {
	case cfg.Random:
		rand.New(rand.NewSource(int64(n))).Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	case cfg.BottomToTop:
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}
	return order
}

// optimizeSeams runs one additional optimization pass per adjacent chunk
// boundary, over the window straddling it (half of each neighboring
// chunk), so a dependency pattern the non-overlapping chunking split right
// down the middle still gets a chance to reorder (spec.md §6's
// split_heuristic_optimize_seam).
func (d *Driver) optimizeSeams(ctx context.Context, instrs []*asmir.Instruction, bounds [][2]int, p Params) []*asmir.Instruction {
	out := instrs
	for i := 0; i+1 < len(bounds); i++ {
		left, right := bounds[i], bounds[i+1]
		mid := (left[0] + left[1]) / 2
		end := right[0] + (right[1]-right[0])/2
		if mid >= end {
			continue
		}
		seam := append([]*asmir.Instruction(nil), out[mid:end]...)
		baselineStalls, baselineErr := d.dryPassStalls(ctx, seam, p)
		optimized, stalls, err := d.optimizeChunk(ctx, seam, p)
		if err != nil || (baselineErr == nil && stalls >= baselineStalls) {
			continue
		}
		copy(out[mid:end], optimized)
	}
	return out
}

func (d *Driver) dryPassStalls(ctx context.Context, chunk []*asmir.Instruction, p Params) (int, error) {
	frozen := p
	frozen.AllowReordering = false
	frozen.AllowRenaming = false
	g := dfg.Build(chunk, dfg.Config{})
	result, err := d.Search(ctx, g, frozen)
	if err != nil {
		return 0, err
	}
	return result.Stalls, nil
}

func (d *Driver) optimizeChunk(ctx context.Context, chunk []*asmir.Instruction, p Params) ([]*asmir.Instruction, int, error) {
	g := dfg.Build(chunk, dfg.Config{})
	result, err := d.Search(ctx, g, p)
	if err != nil {
		return nil, 0, err
	}
	return orderedInstrs(result), result.Stalls, nil
}

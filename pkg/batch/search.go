package batch

import (
	"go.uber.org/zap"

	"tabpipe/pkg/model"
	"tabpipe/pkg/table"
)

// Subset sizes tried by the feature search. Larger sets add little
// accuracy on these pipelines and the combination count grows fast.
const (
	minSearchSize = 2
	maxSearchSize = 5
)

// searchFeatures trains one candidate model per feature combination of
// size minSearchSize..maxSearchSize and scores it on the held-out split,
// returning the best-scoring subset. Combinations whose training fails
// (degenerate labels after row filtering, and the like) are skipped. When
// nothing scores, the full candidate set is returned unchanged.
func (r *Runner) searchFeatures(train, test *table.Table, candidates []string) []string {
	best := candidates
	bestAcc := -1.0
	tried := 0

	maxSize := maxSearchSize
	if maxSize > len(candidates) {
		maxSize = len(candidates)
	}
	for size := minSearchSize; size <= maxSize; size++ {
		combinations(candidates, size, func(set []string) {
			tried++
			acc, ok := r.scoreSubset(train, test, set)
			if ok && acc > bestAcc {
				bestAcc = acc
				best = append([]string(nil), set...)
			}
		})
	}

	if bestAcc < 0 {
		r.logger.Warn("feature search scored no subset, keeping all candidates",
			zap.Int("tried", tried))
		return candidates
	}
	r.logger.Info("feature search complete",
		zap.Int("tried", tried),
		zap.Strings("features", best),
		zap.Float64("accuracy", bestAcc))
	return best
}

// scoreSubset trains on the train split and returns the held-out accuracy
// of one feature subset.
func (r *Runner) scoreSubset(train, test *table.Table, set []string) (float64, bool) {
	tr := completeRows(train, set)
	X, err := tr.Matrix(set)
	if err != nil {
		return 0, false
	}
	y, err := labelVector(tr, r.cfg.LabelColumn)
	if err != nil {
		return 0, false
	}
	ms, err := r.est.Train(X, y)
	if err != nil {
		return 0, false
	}

	te := completeRows(test, set)
	if te.Len() == 0 {
		return 0, false
	}
	testX, err := te.Matrix(set)
	if err != nil {
		return 0, false
	}
	preds, err := r.est.Predict(ms, testX)
	if err != nil {
		return 0, false
	}
	yTest, err := labelVector(te, r.cfg.LabelColumn)
	if err != nil {
		return 0, false
	}
	return model.Accuracy(yTest, preds), true
}

// combinations calls fn with every size-k subset of items, in item order.
// The slice passed to fn is reused between calls.
func combinations(items []string, k int, fn func([]string)) {
	if k <= 0 || k > len(items) {
		return
	}
	set := make([]string, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			fn(set)
			return
		}
		for i := start; i <= len(items)-(k-depth); i++ {
			set[depth] = items[i]
			rec(i+1, depth+1)
		}
	}
	rec(0, 0)
}

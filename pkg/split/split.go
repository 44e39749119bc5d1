// Package split divides tables and matrices into train and test sets.
package split

import (
	"fmt"
	"math/rand"

	"tabpipe/pkg/table"
)

// TimeOrdered sorts the table by the time key and cuts the tail testRatio
// of rows into the test set, so the test period strictly follows the
// training period. This is the split used for temporal pipelines; a
// shuffled split would leak future rows into training.
func TimeOrdered(t *table.Table, timeKey string, testRatio float64) (train, test *table.Table, err error) {
	if testRatio < 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("split: test ratio %v outside [0, 1)", testRatio)
	}
	sorted, err := t.SortByTime(timeKey)
	if err != nil {
		return nil, nil, err
	}
	n := sorted.Len()
	nTest := int(float64(n) * testRatio)
	cut := n - nTest
	trainRows := make([]int, 0, cut)
	testRows := make([]int, 0, nTest)
	for i := 0; i < n; i++ {
		if i < cut {
			trainRows = append(trainRows, i)
		} else {
			testRows = append(testRows, i)
		}
	}
	return sorted.Select(trainRows), sorted.Select(testRows), nil
}

// Shuffled splits X, y into train and test sets by ratio after a seeded
// permutation. Kept for non-temporal tables.
func Shuffled(X [][]float64, y []float64, testRatio float64, seed int64) (XTrain, XTest [][]float64, yTrain, yTest []float64) {
	n := len(X)
	indices := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(float64(n) * testRatio)
	for i, idx := range indices {
		if i < nTest {
			XTest = append(XTest, X[idx])
			yTest = append(yTest, y[idx])
		} else {
			XTrain = append(XTrain, X[idx])
			yTrain = append(yTrain, y[idx])
		}
	}
	return
}

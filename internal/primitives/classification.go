package primitives

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
)

type centroidState struct {
	Target    string      `json:"target"`
	Metric    string      `json:"metric"`
	Labels    []string    `json:"labels"`
	Centroids [][]float64 `json:"centroids"`
}

// NearestCentroid predicts the label whose training centroid is closest.
// Ties go to the label that sorts first.
func NearestCentroid() engine.Primitive {
	return &primitive[centroidState]{
		ref: descriptor(PathNearestCentroid, "Nearest centroid"),
		specs: []engine.HyperparamSpec{
			{Name: "metric", Default: ir.String("euclidean"), Description: "euclidean or manhattan"},
		},
		fit: func(args engine.Arguments, hp engine.Hyperparams) (centroidState, error) {
			x, err := matrixArg(args)
			if err != nil {
				return centroidState{}, err
			}
			y, err := targetsArg(args, x.NumRows())
			if err != nil {
				return centroidState{}, err
			}
			metric := hp.String("metric", "euclidean")
			if _, err := distanceFunc(metric); err != nil {
				return centroidState{}, err
			}

			labels := sortedLabels(y.Values)
			s := centroidState{Target: y.Name, Metric: metric, Labels: labels, Centroids: make([][]float64, len(labels))}
			counts := make([]int, len(labels))
			for k := range labels {
				s.Centroids[k] = make([]float64, len(x.Columns))
			}
			for i, row := range x.Values {
				k, _ := slices.BinarySearch(labels, y.Values[i])
				counts[k]++
				for j, v := range row {
					s.Centroids[k][j] += v
				}
			}
			for k, c := range s.Centroids {
				for j := range c {
					c[j] /= float64(counts[k])
				}
			}
			return s, nil
		},
		produce: func(s *centroidState, args engine.Arguments) (any, error) {
			x, err := matrixArg(args)
			if err != nil {
				return nil, err
			}
			if err := checkWidth(x, len(s.Centroids[0])); err != nil {
				return nil, err
			}
			dist, err := distanceFunc(s.Metric)
			if err != nil {
				return nil, err
			}
			out := dataset.Column{Name: s.Target, Values: make([]string, x.NumRows())}
			for i, row := range x.Values {
				best, bestDist := 0, math.Inf(1)
				for k, c := range s.Centroids {
					if d := dist(row, c); d < bestDist {
						best, bestDist = k, d
					}
				}
				out.Values[i] = s.Labels[best]
			}
			return out, nil
		},
	}
}

type knnState struct {
	Target string      `json:"target"`
	K      int         `json:"k"`
	X      [][]float64 `json:"x"`
	Y      []string    `json:"y"`
}

// KNearestNeighbors predicts the majority label of the k closest training
// rows by euclidean distance. Equidistant rows keep training order; tied
// votes go to the label that sorts first.
func KNearestNeighbors() engine.Primitive {
	return &primitive[knnState]{
		ref: descriptor(PathKNearestNeighbors, "k-nearest neighbors"),
		specs: []engine.HyperparamSpec{
			{Name: "n_neighbors", Default: ir.Int64(5), Description: "number of neighbors that vote"},
		},
		fit: func(args engine.Arguments, hp engine.Hyperparams) (knnState, error) {
			x, err := matrixArg(args)
			if err != nil {
				return knnState{}, err
			}
			y, err := targetsArg(args, x.NumRows())
			if err != nil {
				return knnState{}, err
			}
			k := hp.Int("n_neighbors", 5)
			if k < 1 {
				return knnState{}, fmt.Errorf("n_neighbors must be positive, got %d", k)
			}
			return knnState{
				Target: y.Name,
				K:      int(min(k, int64(x.NumRows()))),
				X:      x.Clone().Values,
				Y:      slices.Clone(y.Values),
			}, nil
		},
		produce: func(s *knnState, args engine.Arguments) (any, error) {
			x, err := matrixArg(args)
			if err != nil {
				return nil, err
			}
			if err := checkWidth(x, len(s.X[0])); err != nil {
				return nil, err
			}
			type neighbor struct {
				dist float64
				idx  int
			}
			out := dataset.Column{Name: s.Target, Values: make([]string, x.NumRows())}
			neighbors := make([]neighbor, len(s.X))
			for i, row := range x.Values {
				for t, train := range s.X {
					neighbors[t] = neighbor{euclidean(row, train), t}
				}
				slices.SortStableFunc(neighbors, func(a, b neighbor) int {
					return cmp.Compare(a.dist, b.dist)
				})
				votes := make([]string, s.K)
				for v := range votes {
					votes[v] = s.Y[neighbors[v].idx]
				}
				out.Values[i] = majority(votes)
			}
			return out, nil
		},
	}
}

type majorityState struct {
	Target string `json:"target"`
	Label  string `json:"label"`
}

// MajorityClass predicts the most frequent training label for every row.
func MajorityClass() engine.Primitive {
	return &primitive[majorityState]{
		ref: descriptor(PathMajorityClass, "Majority class"),
		fit: func(args engine.Arguments, _ engine.Hyperparams) (majorityState, error) {
			x, err := matrixArg(args)
			if err != nil {
				return majorityState{}, err
			}
			y, err := targetsArg(args, x.NumRows())
			if err != nil {
				return majorityState{}, err
			}
			return majorityState{Target: y.Name, Label: majority(y.Values)}, nil
		},
		produce: func(s *majorityState, args engine.Arguments) (any, error) {
			x, err := matrixArg(args)
			if err != nil {
				return nil, err
			}
			out := dataset.Column{Name: s.Target, Values: make([]string, x.NumRows())}
			for i := range out.Values {
				out.Values[i] = s.Label
			}
			return out, nil
		},
	}
}

// majority returns the most frequent label, ties to the one sorting first.
func majority(labels []string) string {
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	best, bestN := "", -1
	for _, l := range sortedLabels(labels) {
		if counts[l] > bestN {
			best, bestN = l, counts[l]
		}
	}
	return best
}

func sortedLabels(labels []string) []string {
	out := slices.Clone(labels)
	slices.Sort(out)
	return slices.Compact(out)
}

func distanceFunc(name string) (func(a, b []float64) float64, error) {
	switch name {
	case "euclidean":
		return euclidean, nil
	case "manhattan":
		return manhattan, nil
	default:
		return nil, fmt.Errorf("unknown metric %q", name)
	}
}

// euclidean returns the squared distance; ordering is all callers need.
func euclidean(a, b []float64) float64 {
	var d float64
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}

func manhattan(a, b []float64) float64 {
	var d float64
	for i := range a {
		d += math.Abs(a[i] - b[i])
	}
	return d
}

package primitives

import "github.com/roach88/ta2/internal/engine"

// All returns a fresh instance of every reference primitive.
func All() []engine.Primitive {
	return []engine.Primitive{
		DatasetToFrame(),
		ExtractAttributes(),
		ExtractTargets(),
		MeanImputer(),
		StandardScaler(),
		NearestCentroid(),
		KNearestNeighbors(),
		MajorityClass(),
		MeanRegressor(),
		RidgeRegression(),
	}
}

// Registry returns a registry holding every reference primitive.
func Registry() *engine.Registry {
	return engine.NewRegistry(All()...)
}

package lstm

import (
	"math"
	"math/rand"
)

// TrainSize is floor(n*fraction). The epsilon absorbs representation error
// such as 0.7*10 evaluating just below 7.
func TrainSize(n int, fraction float64) int {
	size := int(math.Floor(float64(n)*fraction + 1e-9))
	if size > n {
		return n
	}
	if size < 0 {
		return 0
	}
	return size
}

// Split partitions ds into train and eval. A nil rng keeps chronological
// order; otherwise windows are assigned by a random permutation.
func Split(ds Dataset, fraction float64, rng *rand.Rand) (train, eval Dataset) {
	size := TrainSize(len(ds), fraction)
	order := make(Dataset, len(ds))
	copy(order, ds)
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return order[:size:size], order[size:]
}

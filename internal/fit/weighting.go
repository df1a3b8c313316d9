package fit

import (
	"fmt"
	"math"

	"github.com/rcliao/pksim/internal/model"
)

// WeightFloor keeps weights finite for observations at or near zero.
const WeightFloor = 1e-9

// ParseWeighting resolves a weighting name or alias to its canonical mode.
func ParseWeighting(name string) (string, error) {
	mode, ok := model.ValidWeightings[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown weighting %q", model.ErrInvalidInput, name)
	}
	return mode, nil
}

// Weight returns the residual weight for observation y under mode.
func Weight(mode string, y float64) float64 {
	switch mode {
	case model.WeightInverse:
		return 1 / math.Max(math.Abs(y), WeightFloor)
	case model.WeightInverseSquared:
		return 1 / math.Max(y*y, WeightFloor)
	}
	return 1
}

package pk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAUC_LinearDecay(t *testing.T) {
	const c0, tau = 8.0, 12.0
	var time, conc []float64
	for i := 0; i <= 24; i++ {
		at := tau * float64(i) / 24
		time = append(time, at)
		conc = append(conc, c0*(1-at/tau))
	}
	assert.InDelta(t, c0*tau/2, AUC(time, conc), 1e-12)
}

func TestAUC_TooShort(t *testing.T) {
	assert.True(t, math.IsNaN(AUC([]float64{1}, []float64{3})))
	assert.True(t, math.IsNaN(AUC([]float64{2, 1}, []float64{3, 4})))
}

func TestHalfLife_Recovery(t *testing.T) {
	const c0, k = 100.0, 0.173
	time := []float64{0, 1, 2, 4, 8, 12, 24}
	conc := make([]float64, len(time))
	for i, at := range time {
		conc[i] = c0 * math.Exp(-k*at)
	}
	assert.InDelta(t, math.Ln2/k, HalfLife(time, conc), 1e-4)
}

func TestHalfLife_Undefined(t *testing.T) {
	// fewer than three positive samples
	assert.True(t, math.IsNaN(HalfLife([]float64{0, 1, 2, 3}, []float64{0, 5, 2, 0})))
	// rising
	assert.True(t, math.IsNaN(HalfLife([]float64{0, 1, 2}, []float64{1, 2, 4})))
}

func TestAnalyze(t *testing.T) {
	time := []float64{0, 1, 2, 3, 4}
	conc := []float64{0, 4, 4, 2, 1}
	m := Analyze(time, conc, 20)

	assert.Equal(t, 4.0, m.Cmax)
	assert.Equal(t, 1.0, m.Tmax, "first occurrence on ties")
	assert.InDelta(t, 10.5, m.AUC, 1e-12)
	assert.InDelta(t, 20/10.5, m.Clearance, 1e-12)
	assert.False(t, math.IsNaN(m.HalfLife))

	s := m.Summary()
	assert.NotNil(t, s.Clearance)
	assert.Equal(t, 20.0, *s.Dose)
}

func TestAnalyze_NoDose(t *testing.T) {
	m := Analyze([]float64{0, 1, 2}, []float64{0, 0, 0}, 0)
	assert.Equal(t, 0.0, m.Cmax)
	assert.Equal(t, 0.0, m.Tmax)
	assert.Equal(t, 0.0, m.AUC)

	s := m.Summary()
	assert.Nil(t, s.Clearance)
	assert.Nil(t, s.HalfLife)
	assert.NotNil(t, s.AUC)
}

package lstm

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Predictor maps one lookback window to the next normalized value.
type Predictor interface {
	Predict(window []float64) float64
}

// weights is one flat parameter vector with matrix views onto it, so the
// optimizer can walk a single slice while the cell math stays in gonum.
// Gate rows are ordered input, forget, cell, output.
type weights struct {
	hidden int
	flat   []float64
	wx     *mat.VecDense // 4H, scalar input
	wh     *mat.Dense    // 4H x H
	b      *mat.VecDense // 4H
	wy     *mat.VecDense // H, linear head
	by     []float64     // head bias
}

func paramCount(hidden int) int {
	g := 4 * hidden
	return g + g*hidden + g + hidden + 1
}

func newWeights(hidden int) *weights {
	g := 4 * hidden
	w := &weights{hidden: hidden, flat: make([]float64, paramCount(hidden))}
	off := 0
	next := func(n int) []float64 {
		s := w.flat[off : off+n : off+n]
		off += n
		return s
	}
	w.wx = mat.NewVecDense(g, next(g))
	w.wh = mat.NewDense(g, hidden, next(g*hidden))
	w.b = mat.NewVecDense(g, next(g))
	w.wy = mat.NewVecDense(hidden, next(hidden))
	w.by = next(1)
	return w
}

// step holds what back-propagation needs from one timestep.
type step struct {
	x       float64
	hPrev   *mat.VecDense
	cPrev   []float64
	i, f, g []float64
	o       []float64
	tanhC   []float64
}

type tape struct {
	steps []step
	h     *mat.VecDense
}

// forward folds the window through the cell from a zero state and applies the
// head to the final hidden state. When tp is non-nil every step is recorded.
func (w *weights) forward(window []float64, tp *tape) float64 {
	H := w.hidden
	h := mat.NewVecDense(H, nil)
	c := make([]float64, H)
	z := mat.NewVecDense(4*H, nil)

	for _, x := range window {
		z.MulVec(w.wh, h)
		z.AddScaledVec(z, x, w.wx)
		z.AddVec(z, w.b)
		zd := z.RawVector().Data

		hNext := mat.NewVecDense(H, nil)
		cNext := make([]float64, H)
		var st step
		if tp != nil {
			st = step{
				x: x, hPrev: h, cPrev: c,
				i: make([]float64, H), f: make([]float64, H), g: make([]float64, H),
				o: make([]float64, H), tanhC: make([]float64, H),
			}
		}
		for j := 0; j < H; j++ {
			ig := sigmoid(zd[j])
			fg := sigmoid(zd[H+j])
			cg := math.Tanh(zd[2*H+j])
			og := sigmoid(zd[3*H+j])
			cNext[j] = fg*c[j] + ig*cg
			tc := math.Tanh(cNext[j])
			hNext.SetVec(j, og*tc)
			if tp != nil {
				st.i[j], st.f[j], st.g[j], st.o[j], st.tanhC[j] = ig, fg, cg, og, tc
			}
		}
		if tp != nil {
			tp.steps = append(tp.steps, st)
		}
		h, c = hNext, cNext
	}
	if tp != nil {
		tp.h = h
	}
	return mat.Dot(w.wy, h) + w.by[0]
}

// backward accumulates d(loss)/d(weights) into grad given dy = d(loss)/d(output).
func (w *weights) backward(tp *tape, dy float64, grad *weights) {
	H := w.hidden
	grad.by[0] += dy
	grad.wy.AddScaledVec(grad.wy, dy, tp.h)

	dh := mat.NewVecDense(H, nil)
	dh.ScaleVec(dy, w.wy)
	dc := make([]float64, H)
	dz := mat.NewVecDense(4*H, nil)
	dzd := dz.RawVector().Data

	for t := len(tp.steps) - 1; t >= 0; t-- {
		s := tp.steps[t]
		for j := 0; j < H; j++ {
			dhj := dh.AtVec(j)
			dcj := dc[j] + dhj*s.o[j]*(1-s.tanhC[j]*s.tanhC[j])
			dzd[j] = dcj * s.g[j] * s.i[j] * (1 - s.i[j])
			dzd[H+j] = dcj * s.cPrev[j] * s.f[j] * (1 - s.f[j])
			dzd[2*H+j] = dcj * s.i[j] * (1 - s.g[j]*s.g[j])
			dzd[3*H+j] = dhj * s.tanhC[j] * s.o[j] * (1 - s.o[j])
			dc[j] = dcj * s.f[j]
		}
		grad.wx.AddScaledVec(grad.wx, s.x, dz)
		grad.b.AddVec(grad.b, dz)
		grad.wh.RankOne(grad.wh, 1, dz, s.hPrev)
		dh.MulVec(w.wh.T(), dz)
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Model is a single-layer LSTM regressor. Predict is a pure function of the
// window and the weights, so a trained Model is safe for concurrent reads.
type Model struct {
	w *weights
}

// NewModel draws every weight from U(-1/sqrt(H), 1/sqrt(H)).
func NewModel(hidden int, rng *rand.Rand) *Model {
	w := newWeights(hidden)
	k := 1 / math.Sqrt(float64(hidden))
	for i := range w.flat {
		w.flat[i] = (rng.Float64()*2 - 1) * k
	}
	return &Model{w: w}
}

// Predict runs one forward pass.
func (m *Model) Predict(window []float64) float64 {
	return m.w.forward(window, nil)
}

// HiddenSize returns H.
func (m *Model) HiddenSize() int { return m.w.hidden }

// Weights returns a copy of the flat parameter vector.
func (m *Model) Weights() []float64 {
	out := make([]float64, len(m.w.flat))
	copy(out, m.w.flat)
	return out
}

package lstm

// PredictNext runs one forward pass on the latest window and returns the
// prediction in price scale.
func PredictNext(model Predictor, params Params, lastWindow []float64) float64 {
	return params.Denormalize(model.Predict(lastWindow))
}

// PredictHorizon forecasts horizon steps autoregressively. Each prediction is
// denormalized for the output, renormalized with the same params and pushed
// into the window while the oldest value drops out. Output is chronological.
func PredictHorizon(model Predictor, params Params, lastWindow []float64, horizon int) []float64 {
	if horizon <= 0 {
		return []float64{}
	}
	buf := make([]float64, len(lastWindow))
	copy(buf, lastWindow)

	out := make([]float64, 0, horizon)
	for k := 0; k < horizon; k++ {
		price := params.Denormalize(model.Predict(buf))
		out = append(out, price)
		if len(buf) > 0 {
			copy(buf, buf[1:])
			buf[len(buf)-1] = params.Normalize(price)
		}
	}
	return out
}

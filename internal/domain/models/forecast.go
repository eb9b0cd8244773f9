package models

import "time"

// Forecast is the payload returned to clients and published to Kafka.
type Forecast struct {
	Symbol               string    `json:"symbol"`
	NextDayPrediction    float64   `json:"next_day_prediction"`
	NextMonthPredictions []float64 `json:"next_month_predictions"`
	GeneratedAt          time.Time `json:"generated_at"`
	TrainSize            int       `json:"train_size"`
	EvalSize             int       `json:"eval_size"`
	// EvalRMSE is absent when the eval set was empty.
	EvalRMSE  *float64 `json:"eval_rmse,omitempty"`
	LastClose float64  `json:"last_close"`
	LastDate  string   `json:"last_date"`
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCancelled
}

type ForecastJob struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Status     JobStatus  `json:"status"`
	Seed       int64      `json:"seed,omitempty"`
	Epochs     int        `json:"epochs,omitempty"`
	Epoch      int        `json:"epoch"`
	Loss       float64    `json:"loss,omitempty"`
	Error      string     `json:"error,omitempty"`
	Result     *Forecast  `json:"result,omitempty"`
	Source     string     `json:"source,omitempty"` // api | scheduler
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ProgressEvent is emitted after every training epoch and once when the job ends.
type ProgressEvent struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Epoch     int       `json:"epoch"`
	Epochs    int       `json:"epochs"`
	Loss      float64   `json:"loss"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

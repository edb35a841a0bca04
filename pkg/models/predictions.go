package models

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AiPrediction is the record on ai.predictions.v1.
type AiPrediction struct {
	SchemaVersion  int                    `json:"schema_version"`
	PredictionID   string                 `json:"prediction_id"`
	CreatedTs      string                 `json:"created_ts"`
	DeviceID       string                 `json:"device_id"`
	StationID      *string                `json:"station_id"`
	ModelKey       string                 `json:"model_key"`
	ModelVersion   *string                `json:"model_version"`
	HorizonSeconds int                    `json:"horizon_seconds"`
	PredictedTs    string                 `json:"predicted_ts"`
	RiskScore      float64                `json:"risk_score"`
	RiskLevel      *RiskLevel             `json:"risk_level"`
	Explain        *string                `json:"explain"`
	Payload        map[string]interface{} `json:"payload"`
}

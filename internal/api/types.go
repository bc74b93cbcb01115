package api

type HealthDTO struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons"`
}

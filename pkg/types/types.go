package types

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ExtractRequest is the body accepted by the extraction endpoint
type ExtractRequest struct {
	ImageURL string `json:"imageUrl"`
}

// Result is the envelope returned for every extraction attempt.
// TableData and RawText are only meaningful on success, Error only on failure.
type Result struct {
	Success   bool
	TableData any
	RawText   string
	Error     string
}

type successEnvelope struct {
	Success   bool   `json:"success"`
	TableData any    `json:"tableData"`
	RawText   string `json:"rawText"`
}

type failureEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MarshalJSON emits only the fields that belong to the outcome
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successEnvelope{Success: true, TableData: r.TableData, RawText: r.RawText})
	}
	return json.Marshal(failureEnvelope{Success: false, Error: r.Error})
}

// HealthStatus is the static liveness response
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

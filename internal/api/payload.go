package api

type descriptionPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type errorResponse struct {
	Error string `json:"error"`
}

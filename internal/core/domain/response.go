package domain

// Response is the result of a logical call. Degraded and FAILSAFE results have
// the same shape as real ones.
type Response struct {
	Value       any
	Body        []byte
	ContentType string
	Headers     map[string]string
	StatusCode  int

	// Endpoint is the id of the endpoint that served the call, empty for
	// synthetic responses.
	Endpoint string

	// Degraded marks a response synthesized from a degrade config.
	Degraded bool

	// Empty marks the default response returned by the failsafe invoker.
	Empty bool
}

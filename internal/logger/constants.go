package logger

// Stages defines standardized stage names used across the pipeline.
var Stages = struct {
	CacheLookup  string
	MiddlewarePre string
	MiddlewarePost string
	Attempt      string
	Retry        string
	BreakerGate  string
	BreakerTrip  string
	Success      string
	Exhausted    string
}{
	CacheLookup:    "CacheLookup",
	MiddlewarePre:  "MiddlewarePre",
	MiddlewarePost: "MiddlewarePost",
	Attempt:        "Attempt",
	Retry:          "Retry",
	BreakerGate:    "BreakerGate",
	BreakerTrip:    "BreakerTrip",
	Success:        "Success",
	Exhausted:      "Exhausted",
}

// Components defines standardized component names for log attribution.
var Components = struct {
	Pipeline   string
	Retry      string
	Breaker    string
	Cache      string
	Middleware string
	Redactor   string
}{
	Pipeline:   "Pipeline",
	Retry:      "RetryEngine",
	Breaker:    "CircuitBreaker",
	Cache:      "Cache",
	Middleware: "Middleware",
	Redactor:   "Redactor",
}

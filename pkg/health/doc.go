// Package health provides HTTP handlers for liveness and readiness probes.
//
// [LivenessHandler] answers 200 while the process serves requests.
// [ReadinessHandler] runs a set of named [Checks] in parallel under a shared
// timeout and answers 503 when any of them fails:
//
//	r.Get("/health/live", health.LivenessHandler())
//	r.Get("/health/ready", health.ReadinessHandler(health.Checks{
//	    "workers": checkWorkers,
//	}, health.WithTimeout(time.Second)))
//
// Responses are plain text ("ok", or the failure with the names of the
// failed checks) unless the client asks for JSON with an
// Accept: application/json header or ?format=json:
//
//	{
//	  "status": "unhealthy",
//	  "checks": {
//	    "workers": {"status": "unhealthy", "error": "bedrock: no live workers", "duration_ns": 1200}
//	  }
//	}
//
// A check that is still running when the timeout expires is reported with
// an error wrapping [ErrCheckTimeout].
package health

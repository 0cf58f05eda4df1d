// Package httpclient performs single HTTP calls with request shaping, an
// optional DNS result cache, bounded retries and one normalized error type.
//
// A call is described by Options. GET payloads travel in the query string;
// other methods pick a JSON, JSON string, multipart or urlencoded body from
// the Content-Type header:
//
//	resp, err := httpclient.Execute(ctx, httpclient.Options{
//		URI:      "https://api.example.com/orders",
//		Method:   "POST",
//		Form:     map[string]any{"id": 42},
//		Headers:  map[string]string{"Content-Type": "application/json"},
//		MaxTries: 3,
//	})
//	if err != nil {
//		ne, _ := httpclient.AsNormalized(err)
//		log.Printf("code=%d message=%s", ne.Code, ne.Message)
//	}
//
// Every error returned by Execute is a *NormalizedError. Non-2xx responses
// become RemoteError with the response status as code, timeouts become 504
// and failures without a status become 503. Each failed call writes one
// record to the failure log, which is the file <LOGS_PATH>/THINK_REQUEST.log
// when LOGS_PATH is set.
//
// Executors built with NewBuilder or NewFromConfig share a connection pool and
// DNS cache across calls and are safe for concurrent use.
package httpclient

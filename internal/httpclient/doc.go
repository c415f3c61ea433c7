// Package httpclient sends search payloads to the vector database endpoint.
//
// [NewClient] builds the shared *http.Client with a connection pool sized for
// the largest concurrency level. [Executor] wraps it for one search URL:
//
//	client := httpclient.NewClient(30*time.Second, 500)
//	exec, err := httpclient.NewExecutor(client, httpclient.Options{
//		URL:               cfg.SearchURL(),
//		Auth:              auth.NewStaticTokenProvider(cfg.Token),
//		CheckResponseCode: true,
//	})
//	latency, err := exec.Execute(ctx, payload)
//
// A request succeeds on a 2xx status with a fully read body. Other statuses
// yield [*HTTPError]. With CheckResponseCode set, a JSON body carrying a
// non-zero "code" yields [*ResponseCodeError]. Requests are never retried.
package httpclient

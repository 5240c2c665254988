// Package httpclient builds the requests and the client used by the http
// workload.
//
// A [RequestBuilder] is created once from a [RequestTemplate] and then shared
// by every producer of a run:
//
//	builder, err := httpclient.NewRequestBuilder(httpclient.RequestTemplate{
//		Method: "POST",
//		Target: "https://api.example.com/items",
//		Body:   `{"name":"x"}`,
//	})
//	req, err := builder.Build(ctx)
//
// [NewClient] returns an *http.Client tuned for connection reuse under load.
package httpclient

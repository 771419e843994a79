// ABOUTME: langchaingo callbacks handler recording chain runs.
// ABOUTME: Chain start opens a run; chain end finalizes and queues it.

// Package langchain instruments applications built on
// github.com/tmc/langchaingo.
//
// Handler implements callbacks.Handler by embedding the library's
// SimpleHandler and overriding the chain, LLM, tool, and agent
// callbacks. The outermost chain start opens a run and captures the
// user's input; the matching chain end finalizes the record and queues
// it for upload. Nested chains share the run of their parent.
//
// Attach it like any other langchaingo callback handler:
//
//	h, _ := langchain.NewHandler(c.RecordUploader(), langchain.Options{
//		Namespace: "acme",
//		Agent:     "qa-chain",
//	})
//	chains.Call(ctx, chain, inputs, chains.WithCallback(h))
package langchain

// ABOUTME: Tracing helpers for the go-openai chat completion API.
// ABOUTME: Converts requests, responses, and usage into record types.

// Package openai records chat completion traffic made with the
// github.com/sashabaranov/go-openai client.
//
// The helpers translate go-openai types into the record vocabulary:
// exact token usage from the API response, assistant output, and any
// tool calls the model requested. TraceChatCompletion records a whole
// request/response pair onto an accumulator in one call.
package openai

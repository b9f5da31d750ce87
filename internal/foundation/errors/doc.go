// Package errors provides the classified error primitives used across the
// landing page builder.
//
// Every error that crosses a package boundary is a *ClassifiedError carrying
// a category, a severity and a retry strategy. Errors are built with the
// fluent ErrorBuilder:
//
//	err := errors.FetchError("place lookup failed").
//		Retryable().
//		WithContext("build_key", key).
//		Build()
//
// The HTTP and CLI adapters translate classified errors into status codes,
// exit codes and user-facing payloads so raw causes never leak to callers.
package errors

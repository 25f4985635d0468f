// Package model defines the provider‑agnostic completion backend used by the
// agent invoker.
//
// A backend receives an ordered list of prompt parts (text and inline images),
// a token budget and a sampling temperature and returns raw response text.
// The text is expected to be JSON but may be fenced or malformed; parsing and
// recovery are the invoker's job, not the backend's.
//
// Providers (OpenAI, Anthropic) implement Model in sub-packages so higher
// layers stay decoupled from vendor SDKs. MockModel serves tests & examples.
package model

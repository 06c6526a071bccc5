// Package analysis turns a security event and its watchlist terms into a
// summary, severity and suggested action. It provides a deterministic keyword
// Fallback, a Remote strategy backed by an LLM Provider, and a Selector that
// pins the strategy at startup and demotes to the fallback per call.
package analysis

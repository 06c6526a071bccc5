// Package watch is the business boundary for sentinel's event pipeline. It
// defines the Watchlist and Event models, the Store interface, the Service
// that creates events synchronously, and the asynchronous analysis path
// (Dispatcher, Writer, Sink) that enriches them afterwards.
package watch

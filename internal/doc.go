// Package internal contains the implementation packages for tagfill.
//
// # Package Organization
//
//   - markup: node tree over golang.org/x/net/html parsing and serialization
//   - value, expr: dynamic values and the restricted condition language
//   - engine: the repeat, if/else, insert and placeholder passes
//   - registry: templates keyed by id, change events and the insert graph
//   - scanner: discovers <template id> elements in markup files
//   - watcher: debounced fsnotify monitoring that rescans changed files
//   - data: JSON and YAML render contexts
//   - store, notify: Postgres template store and AMQP change events
//   - server, websocket: preview server with live reload
//   - config, errors, logging, metrics, validation, version: ambient support
//
// # Data Flow
//
// The scanner fills the registry from disk and the store adds templates
// that no file defines. The engine resolves inserts through the registry
// while rendering. Registry events drive live reload in the server and
// are published to the notify exchange.
package internal

// Package memory provides in-process implementations of the rag storage
// contracts. They are safe for concurrent use and serve as the reference
// behavior for the persistent backends.
package memory

// Package textutil provides text normalization, similarity and token
// sanitization helpers.
//
// The primary use cases are:
//   - Normalizing transcript text so chunk outputs can be compared
//   - Creating token fingerprints and computing cosine similarity
//   - Sanitizing identifiers for use in file names and topic segments
//
// Normalization applies Unicode case folding and NFKC composition, strips
// punctuation, and collapses whitespace.
package textutil

// Package types holds the data model shared across the query core: index
// fingerprints, codebase snapshot entries, the completion marker, the v3
// call-graph sidecar, and the transient candidate/group shapes produced
// while a single request is served.
package types

// IndexFingerprint is the five-field tuple that uniquely identifies a
// compatible index: embedding provider + model + dimension, vector store
// provider, and schema version. Any field-wise difference against the
// runtime fingerprint forces requires_reindex.
type IndexFingerprint struct {
	EmbeddingProvider    string `json:"embeddingProvider"`
	EmbeddingModel       string `json:"embeddingModel"`
	EmbeddingDimension   int    `json:"embeddingDimension"`
	VectorStoreProvider  string `json:"vectorStoreProvider"`
	SchemaVersion        string `json:"schemaVersion"`
}

// Equal reports field-wise equality. Fingerprints are value types; there
// is no notion of "compatible but unequal".
func (f IndexFingerprint) Equal(other IndexFingerprint) bool {
	return f.EmbeddingProvider == other.EmbeddingProvider &&
		f.EmbeddingModel == other.EmbeddingModel &&
		f.EmbeddingDimension == other.EmbeddingDimension &&
		f.VectorStoreProvider == other.VectorStoreProvider &&
		f.SchemaVersion == other.SchemaVersion
}

// Valid reports whether the fingerprint has a well-formed, positive
// embedding dimension and non-empty scalar fields.
func (f IndexFingerprint) Valid() bool {
	return f.EmbeddingProvider != "" &&
		f.EmbeddingModel != "" &&
		f.EmbeddingDimension > 0 &&
		f.VectorStoreProvider != "" &&
		f.SchemaVersion != ""
}

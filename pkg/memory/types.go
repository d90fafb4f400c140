package memory

// CropVector is one embedded knowledge-base entry.
type CropVector struct {
	// Name is the crop name as written in the knowledge base.
	Name string

	// Digest identifies the entry content the embedding was computed from.
	Digest string

	// Embedding is the vector for the entry document. Its length must match
	// the index dimension.
	Embedding []float32
}

// CropResult is one nearest-neighbour hit.
type CropResult struct {
	Name string

	// Distance is the cosine distance (0 = identical direction, 2 = opposite).
	Distance float64
}

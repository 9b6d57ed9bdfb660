package syntaxchunk

// Params configures chunk sizing — all measured in
// non-whitespace characters.
type Params struct {
	ChunkSize               int
	ChunkOverlap            int
	MinChunkSize            int
	MaxChunkSize            int
	ClassDecomposeThreshold float64
}

// DefaultParams returns the stock sizing parameters.
func DefaultParams() Params {
	return Params{
		ChunkSize:               1500,
		ChunkOverlap:            150,
		MinChunkSize:            200,
		MaxChunkSize:            3000,
		ClassDecomposeThreshold: 1.5,
	}
}

// shouldFlush decides whether appending a part of partLen non-whitespace
// characters to an accumulator already holding curNonWS non-whitespace
// characters should instead start a new chunk:
//
//	curNonWS+partLen > chunkSize && curNonWS >= minChunkSize
//	  OR curNonWS >= 0.8*chunkSize && curNonWS+partLen > 1.2*chunkSize
//	  OR curNonWS >= 0.6*chunkSize && isMajorBoundary(part) && curNonWS+partLen > 1.5*chunkSize
func shouldFlush(curNonWS, partLen int, isBoundary bool, p Params) bool {
	cs := float64(p.ChunkSize)
	sum := float64(curNonWS + partLen)
	cur := float64(curNonWS)

	if sum > cs && cur >= float64(p.MinChunkSize) {
		return true
	}
	if cur >= 0.8*cs && sum > 1.2*cs {
		return true
	}
	if cur >= 0.6*cs && isBoundary && sum > 1.5*cs {
		return true
	}
	return false
}

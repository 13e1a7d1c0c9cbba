package model

// TimestampMethod records how a mention timestamp was obtained.
type TimestampMethod string

// Timestamp methods in decreasing order of reliability.
const (
	MethodExistingTranscript   TimestampMethod = "existing-transcript"
	MethodChapterMetadata      TimestampMethod = "chapter-metadata"
	MethodDescriptionParsed    TimestampMethod = "description-parsed"
	MethodPositionInterpolated TimestampMethod = "position-interpolated"
)

// IsEstimated reports whether the method infers rather than observes the time.
func (m TimestampMethod) IsEstimated() bool {
	return m == MethodPositionInterpolated
}

// Valid reports whether m is a known method.
func (m TimestampMethod) Valid() bool {
	switch m {
	case MethodExistingTranscript, MethodChapterMetadata, MethodDescriptionParsed, MethodPositionInterpolated:
		return true
	}
	return false
}

// TimestampAnchor is a resolved mention time for a stored product.
type TimestampAnchor struct {
	KnownSeconds     *int // set when the time was observed directly
	VideoID          string
	Method           TimestampMethod
	ProductID        int64
	EstimatedSeconds int
}

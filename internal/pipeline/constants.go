package pipeline

const (
	// IngestBuffer absorbs audio arriving while a window transcribes.
	IngestBuffer = 256

	// MinDiarizeSeconds is the shortest window worth sending to the
	// diarization model.
	MinDiarizeSeconds = 1.0
)

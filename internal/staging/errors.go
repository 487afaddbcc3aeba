package staging

// emptyUploadError signals a consolidate/commit attempted against an empty
// chunk map. Recoverable: the caller uploads chunks and retries.
type emptyUploadError struct{}

func (emptyUploadError) Error() string { return "no parallel chunks to consolidate" }

// ErrEmptyUpload constructs an emptyUploadError.
func ErrEmptyUpload() error { return emptyUploadError{} }

// IsEmptyUpload reports whether err indicates an empty parallel chunk map.
func IsEmptyUpload(err error) bool {
	_, ok := err.(emptyUploadError)
	return ok
}

// emptyBufferError signals a commit attempted against an empty sequential
// buffer.
type emptyBufferError struct{ key string }

func (e emptyBufferError) Error() string { return "no data in buffer for key: " + e.key }

// ErrEmptyBuffer constructs an emptyBufferError for key.
func ErrEmptyBuffer(key string) error { return emptyBufferError{key: key} }

// IsEmptyBuffer reports whether err indicates an empty sequential buffer.
func IsEmptyBuffer(err error) bool {
	_, ok := err.(emptyBufferError)
	return ok
}

package engine

// notInitializedError signals generation attempted before a successful load.
type notInitializedError struct{}

func (notInitializedError) Error() string { return "model not initialized, call setup first" }

// ErrNotInitialized constructs a notInitializedError.
func ErrNotInitialized() error { return notInitializedError{} }

// IsNotInitialized reports whether err indicates a missing model session.
func IsNotInitialized(err error) bool {
	_, ok := err.(notInitializedError)
	return ok
}

// artifactNotFoundError signals a missing weights or tokenizer blob.
type artifactNotFoundError struct{ key string }

func (e artifactNotFoundError) Error() string {
	return e.key + " not found in stable storage, upload it first"
}

// ErrArtifactNotFound constructs an artifactNotFoundError for key.
func ErrArtifactNotFound(key string) error { return artifactNotFoundError{key: key} }

// IsArtifactNotFound reports whether err indicates a missing model artifact.
func IsArtifactNotFound(err error) bool {
	_, ok := err.(artifactNotFoundError)
	return ok
}

// decodeError signals malformed weights or tokenizer data. Unrecoverable for
// this load attempt; the caller must re-upload corrected data.
type decodeError struct {
	what string
	err  error
}

func (e decodeError) Error() string { return "decode " + e.what + ": " + e.err.Error() }
func (e decodeError) Unwrap() error { return e.err }

// ErrDecode wraps err as a decode failure of the named artifact.
func ErrDecode(what string, err error) error { return decodeError{what: what, err: err} }

// IsDecode reports whether err indicates malformed artifact data.
func IsDecode(err error) bool {
	_, ok := err.(decodeError)
	return ok
}

// constructionError signals a container whose tensors are inconsistent with
// the declared architecture.
type constructionError struct{ err error }

func (e constructionError) Error() string { return "model construction: " + e.err.Error() }
func (e constructionError) Unwrap() error { return e.err }

// ErrConstruction wraps err as a model construction failure.
func ErrConstruction(err error) error { return constructionError{err: err} }

// IsConstruction reports whether err indicates inconsistent tensor shapes.
func IsConstruction(err error) bool {
	_, ok := err.(constructionError)
	return ok
}

// tokenizationError signals a prompt the tokenizer could not encode.
type tokenizationError struct{ err error }

func (e tokenizationError) Error() string { return "tokenization error: " + e.err.Error() }
func (e tokenizationError) Unwrap() error { return e.err }

// ErrTokenization wraps err as a prompt encoding failure.
func ErrTokenization(err error) error { return tokenizationError{err: err} }

// IsTokenization reports whether err indicates a prompt encoding failure.
func IsTokenization(err error) bool {
	_, ok := err.(tokenizationError)
	return ok
}

// dependencyUnavailableError signals a missing runtime dependency (e.g. the
// native forward backend was not compiled in) so the HTTP layer can return
// 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}

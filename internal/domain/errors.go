package domain

import "errors"

// Stage names the pipeline step an error belongs to.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageResolve   Stage = "resolve"
	StageScrape    Stage = "scrape"
	StageNormalize Stage = "normalize"
	StageTag       Stage = "tag"
	StageClassify  Stage = "classify"
	StagePersist   Stage = "persist"
)

var (
	ErrDuplicate    = errors.New("duplicate")
	ErrNotFound     = errors.New("not found")
	ErrNotRetryable = errors.New("record is not in a retryable state")
)

type stageError struct {
	msg string
	err error
}

func (e stageError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e stageError) Unwrap() error { return e.err }

// ExtractionError means a message had no usable URL or text.
type ExtractionError struct{ stageError }

func NewExtractionError(msg string, err error) *ExtractionError {
	return &ExtractionError{stageError{msg: "extract: " + msg, err: err}}
}

// ResolutionError means a redirect chain could not be followed.
type ResolutionError struct {
	stageError
	URL string
}

func NewResolutionError(rawURL, msg string, err error) *ResolutionError {
	return &ResolutionError{stageError: stageError{msg: "resolve " + rawURL + ": " + msg, err: err}, URL: rawURL}
}

// ScrapeError means a product page could not be fetched or parsed.
type ScrapeError struct {
	stageError
	URL     string
	Blocked bool
}

func NewScrapeError(rawURL string, blocked bool, msg string, err error) *ScrapeError {
	return &ScrapeError{stageError: stageError{msg: "scrape " + rawURL + ": " + msg, err: err}, URL: rawURL, Blocked: blocked}
}

// NormalizationError means a candidate could not be turned into a product.
type NormalizationError struct{ stageError }

func NewNormalizationError(msg string, err error) *NormalizationError {
	return &NormalizationError{stageError{msg: "normalize: " + msg, err: err}}
}

// TaggingError means no affiliate tag could be applied.
type TaggingError struct {
	stageError
	Network string
}

func NewTaggingError(network, msg string, err error) *TaggingError {
	return &TaggingError{stageError: stageError{msg: "tag " + network + ": " + msg, err: err}, Network: network}
}

// PersistenceError means a bundle write failed.
type PersistenceError struct{ stageError }

func NewPersistenceError(msg string, err error) *PersistenceError {
	return &PersistenceError{stageError{msg: "persist: " + msg, err: err}}
}

func (*ExtractionError) Stage() Stage    { return StageExtract }
func (*ResolutionError) Stage() Stage    { return StageResolve }
func (*ScrapeError) Stage() Stage        { return StageScrape }
func (*NormalizationError) Stage() Stage { return StageNormalize }
func (*TaggingError) Stage() Stage       { return StageTag }
func (*PersistenceError) Stage() Stage   { return StagePersist }

// StageOf maps an error to the stage that produced it.
func StageOf(err error) Stage {
	var staged interface{ Stage() Stage }
	if errors.As(err, &staged) {
		return staged.Stage()
	}
	return ""
}

package models

// Outcome classifies a single download attempt
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient_failure" // Eligible for retry
	OutcomeFatal     Outcome = "fatal_failure"     // Retrying cannot help
)

// String implements fmt.Stringer for logging
func (o Outcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}

// ItemState is the lifecycle state of a WorkItem inside a batch
type ItemState string

const (
	ItemStatePending    ItemState = ""           // Zero value, not yet terminal
	ItemStateDownloaded ItemState = "downloaded" // Terminal: file written to destination
	ItemStateSkipped    ItemState = "skipped"    // Terminal: ineligible before any attempt
	ItemStateFailed     ItemState = "failed"     // Terminal: last attempt failed or batch cancelled
)

// String implements fmt.Stringer for logging
func (s ItemState) String() string {
	if s == "" {
		return "pending"
	}
	return string(s)
}

// IsTerminal reports whether the state can no longer change
func (s ItemState) IsTerminal() bool {
	switch s {
	case ItemStateDownloaded, ItemStateSkipped, ItemStateFailed:
		return true
	}
	return false
}

// ImageStatus represents the processing status of an image in the database
type ImageStatus string

const (
	ImageStatusUnset    ImageStatus = ""          // Zero value = unset/unknown
	ImageStatusSuccess  ImageStatus = "success"   // Image downloaded successfully
	ImageStatusFailure  ImageStatus = "failure"   // Image download failed
	ImageStatusSkipped  ImageStatus = "skipped"   // Image skipped before download
	ImageStatusNotFound ImageStatus = "not_found" // Image not in database
	ImageStatusDBError  ImageStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s ImageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s ImageStatus) IsValid() bool {
	switch s {
	case ImageStatusSuccess, ImageStatusFailure, ImageStatusSkipped:
		return true
	}
	return false
}

// ImageStatusFor maps a terminal item state to the status stored in the DB
func ImageStatusFor(state ItemState) ImageStatus {
	switch state {
	case ItemStateDownloaded:
		return ImageStatusSuccess
	case ItemStateSkipped:
		return ImageStatusSkipped
	case ItemStateFailed:
		return ImageStatusFailure
	}
	return ImageStatusUnset
}

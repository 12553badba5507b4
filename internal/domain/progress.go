package domain

// DownloadStatus tracks the lifecycle of one media transfer.
type DownloadStatus int

const (
	DownloadIdle DownloadStatus = iota
	DownloadInProgress
	DownloadCompleted
	DownloadFailed
)

// String returns a human-readable representation of the download status
func (s DownloadStatus) String() string {
	switch s {
	case DownloadInProgress:
		return "downloading"
	case DownloadCompleted:
		return "completed"
	case DownloadFailed:
		return "error"
	default:
		return "idle"
	}
}

// DownloadProgress is one progress snapshot for a media transfer, keyed by
// (StoryID, URL) so a UI showing one story can ignore prefetch traffic for
// another. TotalBytes is -1 when the server did not report a length.
type DownloadProgress struct {
	StoryID         string
	URL             string
	Progress        float64 // 0.0-1.0, 0 when total is unknown
	DownloadedBytes int64
	TotalBytes      int64
	Status          DownloadStatus
	Err             error
}

// Fraction returns the completed fraction, or 0 when the total is unknown.
func (p DownloadProgress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.DownloadedBytes) / float64(p.TotalBytes)
}

package models

// PendingFile is an input image waiting in the processing queue.
type PendingFile struct {
	Name string
	Data []byte
	// ContentType is optional; empty means "detect from Data".
	ContentType string
}

// Size returns the blob length in bytes.
func (f PendingFile) Size() int64 {
	return int64(len(f.Data))
}

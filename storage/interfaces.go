package storage

import "tender-scraper/models"

// RecordWriter is the interface any storage backend must satisfy.
type RecordWriter interface {
	Write(records []models.MergedRecord) error
	Close() error
}

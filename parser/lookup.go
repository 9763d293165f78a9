package parser

import "github.com/PuerkitoBio/goquery"

// Strategy locates one logical field under one markup shape. It reports
// false when the shape is not present in doc.
type Strategy[T any] func(doc *goquery.Document) (T, bool)

// Cascade tries strategies in order and returns the first value found.
func Cascade[T any](doc *goquery.Document, strategies ...Strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := s(doc); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Money is a located amount and its currency code, both as printed.
type Money struct {
	Amount   string
	Currency string
}

func found(v string) (string, bool) {
	if v == "" || v == unknown {
		return "", false
	}
	return v, true
}

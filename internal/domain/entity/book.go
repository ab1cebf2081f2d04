// Package entity holds the records moved by the book batch.
package entity

import "fmt"

// Book is one record of the input document. It has no identity of its own.
type Book struct {
	Title string `gorm:"column:title"`
	Year  int    `gorm:"column:year"`
}

// TableName specifies the table name for Book.
func (Book) TableName() string {
	return "book"
}

// String renders the book the way the read-back reports it.
func (b Book) String() string {
	return fmt.Sprintf("Book(title=%s, year=%d)", b.Title, b.Year)
}

// Package listener provides the application's job listeners.
package listener

import (
	"context"
	"fmt"
	"io"
	"os"

	"gorm.io/gorm"

	"github.com/tigerroll/bookbatch/internal/domain/entity"
	port "github.com/tigerroll/bookbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/bookbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/bookbatch/pkg/batch/support/util/logger"
)

// ReadBackQuery selects every stored book.
const ReadBackQuery = "SELECT * FROM book"

// GormProvider exposes a gorm session.
type GormProvider interface {
	GetGormDB() *gorm.DB
}

// BookReadBackListener prints every row of the book table once the job has finished.
// It is diagnostic only: query failures are logged and never change the job status.
type BookReadBackListener struct {
	db  GormProvider
	out io.Writer
}

// NewBookReadBackListener creates a listener querying db and printing to out.
// A nil out means stdout.
func NewBookReadBackListener(db GormProvider, out io.Writer) *BookReadBackListener {
	if out == nil {
		out = os.Stdout
	}
	return &BookReadBackListener{db: db, out: out}
}

// BeforeJob logs the start of the job.
func (l *BookReadBackListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("BookReadBackListener: Job '%s' (ID: %s) starting.", jobExecution.JobName, jobExecution.ID)
}

// AfterJob prints the stored books, one per line.
func (l *BookReadBackListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	books, err := l.ReadBack(ctx)
	if err != nil {
		logger.Errorf("BookReadBackListener: Failed to read back books after job '%s': %v", jobExecution.JobName, err)
		return
	}
	logger.Infof("BookReadBackListener: %d book(s) stored after job '%s' ended with %s.", len(books), jobExecution.JobName, jobExecution.Status)
	for _, b := range books {
		if _, err := fmt.Fprintln(l.out, b.String()); err != nil {
			logger.Errorf("BookReadBackListener: Failed to print book: %v", err)
			return
		}
	}
}

// ReadBack returns the rows of the book table in storage order.
func (l *BookReadBackListener) ReadBack(ctx context.Context) ([]entity.Book, error) {
	var books []entity.Book
	if err := l.db.GetGormDB().WithContext(ctx).Raw(ReadBackQuery).Scan(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

var _ port.JobExecutionListener = (*BookReadBackListener)(nil)

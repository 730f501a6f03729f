// Package clipboard copies replies to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrUnavailable indicates that no clipboard utility is installed.
var ErrUnavailable = errors.New("system clipboard unavailable")

// Copier copies textual data to the system clipboard.
type Copier interface {
	Copy(text string) error
}

// Service implements Copier using github.com/atotto/clipboard.
type Service struct {
	unsupported func() bool
	write       func(string) error
}

// NewService constructs a Service backed by the system clipboard.
func NewService() *Service {
	return &Service{
		unsupported: func() bool { return clipboard.Unsupported },
		write:       clipboard.WriteAll,
	}
}

// Copy writes text to the system clipboard.
func (service *Service) Copy(text string) error {
	if service.unsupported() {
		return ErrUnavailable
	}
	if writeErr := service.write(text); writeErr != nil {
		return fmt.Errorf("write clipboard: %w", writeErr)
	}
	return nil
}

var _ Copier = (*Service)(nil)

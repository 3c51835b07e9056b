package health

import (
	"context"
	"errors"
	"testing"
)

type pinger struct {
	err error
}

func (p pinger) Ping(_ context.Context) error { return p.err }

func TestCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		report := New(pinger{}).Check(context.Background())
		if report.Status != Healthy || report.Checks["catalog"] != CheckOK {
			t.Errorf("unexpected report %+v", report)
		}
	})

	t.Run("store down", func(t *testing.T) {
		report := New(pinger{err: errors.New("refused")}).Check(context.Background())
		if report.Status != Degraded || report.Checks["catalog"] != CheckError {
			t.Errorf("unexpected report %+v", report)
		}
	})
}

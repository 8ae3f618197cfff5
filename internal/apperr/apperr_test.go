package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("ctx: %w", Validation("bad")), http.StatusBadRequest},
		{"conflict", Conflict("dup"), http.StatusConflict},
		{"unauthorized", Unauthorized("no"), http.StatusUnauthorized},
		{"not found", fmt.Errorf("conversation x: %w", ErrNotFound), http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDetailsOf(t *testing.T) {
	err := Validation("first", "first", "second")
	details := DetailsOf(err)
	if len(details) != 2 || details[1] != "second" {
		t.Errorf("DetailsOf() = %v, want [first second]", details)
	}
	if DetailsOf(errors.New("plain")) != nil {
		t.Error("DetailsOf(plain) should be nil")
	}
}

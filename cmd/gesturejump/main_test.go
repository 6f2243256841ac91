package main

import (
	"strings"
	"testing"
)

func TestRecoverPanic(t *testing.T) {
	run := func(fn func()) (err error) {
		defer recoverPanic(&err)
		fn()
		return nil
	}

	t.Run("panic becomes error", func(t *testing.T) {
		err := run(func() { panic("boom") })
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Errorf("err = %v, want panic error mentioning boom", err)
		}
	})

	t.Run("no panic keeps nil", func(t *testing.T) {
		if err := run(func() {}); err != nil {
			t.Errorf("err = %v, want nil", err)
		}
	})
}

func TestIsURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://example.com/gesture_recognizer.task", true},
		{"http://localhost/model.task", true},
		{"/home/me/.gesturejump/models/gesture_recognizer.task", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := isURL(tt.in); got != tt.want {
				t.Errorf("isURL(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

package inlinesearch

import (
	"errors"
	"testing"

	"weatherstuff/pkg/weatherstuff"
)

func TestParseCursor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Cursor
		wantErr bool
	}{
		{name: "positive query id", raw: "4123-0", want: Cursor{SessionID: "4123", Page: 0}},
		{name: "negative query id", raw: "-8817262-3", want: Cursor{SessionID: "-8817262", Page: 3}},
		{name: "generated id", raw: "cs1nq3b5l5gs73ekf8ag-12", want: Cursor{SessionID: "cs1nq3b5l5gs73ekf8ag", Page: 12}},
		{name: "empty", raw: "", wantErr: true},
		{name: "no separator", raw: "4123", wantErr: true},
		{name: "missing session", raw: "-5", wantErr: true},
		{name: "bare minus session", raw: "--5", wantErr: true},
		{name: "missing page", raw: "4123-", wantErr: true},
		{name: "non numeric page", raw: "4123-x", wantErr: true},
		{name: "negative page", raw: "4123--1", wantErr: true},
		{name: "space in session", raw: "41 23-1", wantErr: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCursor(testCase.raw)
			if testCase.wantErr {
				if !errors.Is(err, weatherstuff.ErrInvalidCursor) {
					t.Fatalf("error = %v, want ErrInvalidCursor", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("cursor = %+v, want %+v", got, testCase.want)
			}
			if got.String() != testCase.raw {
				t.Fatalf("encoded = %q, want %q", got.String(), testCase.raw)
			}
		})
	}
}

func TestCursorNextKeepsSession(t *testing.T) {
	t.Parallel()

	next := Cursor{SessionID: "-77", Page: 4}.Next()
	if next.SessionID != "-77" || next.Page != 5 {
		t.Fatalf("next = %+v", next)
	}
	if next.String() != "-77-5" {
		t.Fatalf("encoded = %q, want -77-5", next.String())
	}
}

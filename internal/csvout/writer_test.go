package csvout

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteQuotesEveryField(t *testing.T) {
	tests := []struct {
		name      string
		delimiter byte
		records   [][]string
		want      string
	}{
		{
			name:      "semicolon header and row",
			delimiter: ';',
			records:   [][]string{{"ID", "NAME"}, {"1", "Müller"}},
			want:      "\"ID\";\"NAME\"\n\"1\";\"Müller\"\n",
		},
		{
			name:      "comma delimiter",
			delimiter: ',',
			records:   [][]string{{"a", "b"}},
			want:      "\"a\",\"b\"\n",
		},
		{
			name:      "embedded quote doubled",
			delimiter: ';',
			records:   [][]string{{`say "hi"`}},
			want:      "\"say \"\"hi\"\"\"\n",
		},
		{
			name:      "empty fields stay quoted",
			delimiter: ';',
			records:   [][]string{{"", ""}},
			want:      "\"\";\"\"\n",
		},
		{
			name:      "delimiter inside field is safe",
			delimiter: ';',
			records:   [][]string{{"a;b", "c"}},
			want:      "\"a;b\";\"c\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := New(&buf, tt.delimiter)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			for _, rec := range tt.records {
				if err := w.Write(rec); err != nil {
					t.Fatalf("Write: %v", err)
				}
			}
			if err := w.Flush(); err != nil {
				t.Fatalf("Flush: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestBadDelimiterRejected(t *testing.T) {
	for _, d := range []byte{'"', '\n', '\r', 0} {
		var buf bytes.Buffer
		if _, err := New(&buf, d); !errors.Is(err, ErrBadDelimiter) {
			t.Errorf("delimiter 0x%02X: err = %v, want ErrBadDelimiter", d, err)
		}
	}
}

type failWriter struct{ err error }

func (f failWriter) Write([]byte) (int, error) { return 0, f.err }

func TestStickyWriteError(t *testing.T) {
	wantErr := errors.New("disk full")
	w, err := New(failWriter{err: wantErr}, ';')
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Overflow the buffer so the underlying write error surfaces.
	big := make([]string, 1)
	big[0] = string(bytes.Repeat([]byte{'x'}, 128<<10))
	if err := w.Write(big); !errors.Is(err, wantErr) {
		t.Fatalf("Write err = %v, want %v", err, wantErr)
	}
	if err := w.Write([]string{"a"}); !errors.Is(err, wantErr) {
		t.Errorf("sticky err = %v, want %v", err, wantErr)
	}
	if !errors.Is(w.Err(), wantErr) {
		t.Errorf("Err() = %v, want %v", w.Err(), wantErr)
	}
}

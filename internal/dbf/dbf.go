// Package dbf reads dBASE III/IV table files.
//
// A Table is opened once and can hand out any number of independent Rows
// iterators, each restartable from the first record. Text decoding is
// not baked into the table: every iterator is given a charset.Codec, so
// the same file can be probed under several candidate encodings without
// re-reading the header.
//
// Memo (M) fields reference an external .dbt/.fpt file; without one the
// field decodes as absent.
package dbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	headerSize    = 32
	fieldDescSize = 32
	// fieldTerminator closes the field descriptor array.
	fieldTerminator = 0x0D
	// deletedFlag marks a record as logically removed.
	deletedFlag = '*'
)

var (
	// ErrInvalidHeader indicates the file is not a DBF table.
	ErrInvalidHeader = errors.New("dbf: invalid table header")
)

// header mirrors the 32-byte dBASE file header.
type header struct {
	Version          byte
	Year, Month, Day uint8
	RecordCount      uint32
	HeaderLen        uint16
	RecordLen        uint16
	_                [16]byte
	TableFlags       byte
	CodePage         byte
	_                [2]byte
}

// Field describes one column of the table.
type Field struct {
	Name     string
	Type     byte // 'C', 'N', 'F', 'D', 'L', 'M', 'I'
	Length   int
	Decimals int
	offset   int // position within the record, after the deletion flag
}

// Table is an open DBF file.
type Table struct {
	r      io.ReaderAt
	closer io.Closer
	hdr    header
	fields []Field
}

// Open opens the DBF file at path. The caller owns the returned table
// and must Close it.
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	t, err := New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	t.closer = f
	return t, nil
}

// New parses a DBF table from r. Iterators created from the table read
// through r directly, so r must stay valid for the table's lifetime.
func New(r io.ReaderAt) (*Table, error) {
	var raw [headerSize]byte
	if _, err := r.ReadAt(raw[:], 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrInvalidHeader
		}
		return nil, fmt.Errorf("dbf: read header: %w", err)
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(raw[:]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("dbf: decode header: %w", err)
	}
	if hdr.HeaderLen < headerSize+1 || hdr.RecordLen < 1 {
		return nil, ErrInvalidHeader
	}

	fields, err := readFieldDescriptors(r, int(hdr.HeaderLen))
	if err != nil {
		return nil, err
	}

	recLen := 1 // deletion flag
	for _, f := range fields {
		recLen += f.Length
	}
	if recLen > int(hdr.RecordLen) {
		return nil, fmt.Errorf("dbf: field lengths (%d) exceed record length (%d): %w",
			recLen, hdr.RecordLen, ErrInvalidHeader)
	}

	return &Table{r: r, hdr: hdr, fields: fields}, nil
}

func readFieldDescriptors(r io.ReaderAt, headerLen int) ([]Field, error) {
	var fields []Field
	offset := 1 // records start with the deletion flag
	for pos := headerSize; pos+fieldDescSize <= headerLen; pos += fieldDescSize {
		var desc [fieldDescSize]byte
		if _, err := r.ReadAt(desc[:1], int64(pos)); err != nil {
			return nil, fmt.Errorf("dbf: read field descriptor: %w", err)
		}
		if desc[0] == fieldTerminator {
			break
		}
		if _, err := r.ReadAt(desc[:], int64(pos)); err != nil {
			return nil, fmt.Errorf("dbf: read field descriptor: %w", err)
		}

		name := strings.TrimRight(string(desc[:11]), "\x00 ")
		if name == "" {
			return nil, ErrInvalidHeader
		}
		f := Field{
			Name:     name,
			Type:     desc[11],
			Length:   int(desc[16]),
			Decimals: int(desc[17]),
			offset:   offset,
		}
		offset += f.Length
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, ErrInvalidHeader
	}
	return fields, nil
}

// Close releases the underlying file, if the table owns one.
func (t *Table) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

// Fields returns the column names in file order.
func (t *Table) Fields() []string {
	names := make([]string, len(t.fields))
	for i, f := range t.fields {
		names[i] = f.Name
	}
	return names
}

// FieldSpecs returns the full column descriptors in file order.
func (t *Table) FieldSpecs() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// RecordCount returns the physical record count from the header,
// including deleted records.
func (t *Table) RecordCount() int { return int(t.hdr.RecordCount) }

// Version returns the dBASE version byte.
func (t *Table) Version() byte { return t.hdr.Version }

// CodePage returns the language driver byte from the header. Many legacy
// writers left it zero, which is why encoding has to be probed.
func (t *Table) CodePage() byte { return t.hdr.CodePage }

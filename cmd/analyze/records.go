package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

// readRecordsFile reads raw records from path, or from stdin when path is "-".
func readRecordsFile(path string) ([]domain.RawRecord, error) {
	if path == "-" {
		return decodeRecords(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	records, err := decodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// decodeRecords accepts a bare JSON array or an object with a "records"
// array, the shape the run endpoint takes.
func decodeRecords(r io.Reader) ([]domain.RawRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	switch first {
	case '[':
		var records []domain.RawRecord
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	case '{':
		var body struct {
			Records []domain.RawRecord `json:"records"`
		}
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return body.Records, nil
	default:
		return nil, fmt.Errorf("input must be a JSON array or object, found %q", first)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.Discard(1); err != nil {
			return 0, err
		}
	}
}

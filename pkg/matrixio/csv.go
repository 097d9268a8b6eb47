package matrixio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/go-faster/errors"
	"gonum.org/v1/gonum/mat"
)

type csvPosition struct {
	name   string
	reader *csv.Reader
}

func (p csvPosition) errorf(field int, format string, v ...any) error {
	line, column := p.reader.FieldPos(field)
	return errors.Errorf("%s:%d:%d: %s", p.name, line, column,
		fmt.Sprintf(format, v...))
}

func (p csvPosition) wrapf(
	err error, field int, format string, v ...any,
) error {
	line, column := p.reader.FieldPos(field)
	return errors.Wrapf(err, "%s:%d:%d: %s", p.name, line, column,
		fmt.Sprintf(format, v...))
}

// ReadDenseCSV reads a matrix stored one row per CSV record.
// All records must have the same number of fields.
// name labels the input in error messages.
func ReadDenseCSV(r io.Reader, name string) (*mat.Dense, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	pos := csvPosition{name, reader}
	var (
		data []float64
		rows int
		cols int
	)
	fields, err := reader.Read()
	for ; err == nil; fields, err = reader.Read() {
		cols = len(fields)
		for j, field := range fields {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, pos.wrapf(err, j, "invalid value %#v", field)
			}
			data = append(data, value)
		}
		rows++
	}
	if err != io.EOF {
		return nil, errors.Wrapf(err, "cannot read matrix CSV %#v", name)
	}
	if rows == 0 {
		return nil, errors.Errorf("%s: empty matrix", name)
	}
	return mat.NewDense(rows, cols, data), nil
}

// ReadCOOCSV reads a square matrix stored as row,col,value CSV records.
// The size is one more than the largest index;
// entries not listed are zero and duplicate entries are added together.
// Indices must be below the maximum dimension (see WithMaxDim).
func ReadCOOCSV(
	r io.Reader, name string, opts ...ReadOpt,
) (*mat.Dense, error) {
	maxDim := int64(readOpts(opts).maxDim)
	type entry struct {
		i, j int
		v    float64
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	pos := csvPosition{name, reader}
	var (
		entries []entry
		size    int
	)
	fields, err := reader.Read()
	for ; err == nil; fields, err = reader.Read() {
		if len(fields) < 3 {
			return nil, pos.errorf(0, "too few (%d) fields", len(fields))
		}
		if len(fields) > 3 {
			return nil, pos.errorf(0, "too many (%d) fields", len(fields))
		}
		var (
			row, col int64
			value    float64
		)
		row, err = strconv.ParseInt(fields[0], 0, 0)
		switch {
		case err != nil:
			return nil, pos.wrapf(err, 0, "invalid row=%#v", fields[0])
		case row < 0:
			return nil, pos.errorf(0, "negative row=%#v", row)
		case row >= maxDim:
			return nil, pos.errorf(0, "row=%#v exceeds max dimension %d",
				row, maxDim)
		}
		col, err = strconv.ParseInt(fields[1], 0, 0)
		switch {
		case err != nil:
			return nil, pos.wrapf(err, 1, "invalid col=%#v", fields[1])
		case col < 0:
			return nil, pos.errorf(1, "negative col=%#v", col)
		case col >= maxDim:
			return nil, pos.errorf(1, "col=%#v exceeds max dimension %d",
				col, maxDim)
		}
		value, err = strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, pos.wrapf(err, 2, "invalid value=%#v", fields[2])
		}
		i, j := int(row), int(col)
		entries = append(entries, entry{i, j, value})
		if size <= i {
			size = i + 1
		}
		if size <= j {
			size = j + 1
		}
	}
	if err != io.EOF {
		return nil, errors.Wrapf(err, "cannot read matrix CSV %#v", name)
	}
	if size == 0 {
		return nil, errors.Errorf("%s: empty matrix", name)
	}
	m := mat.NewDense(size, size, nil)
	for _, e := range entries {
		m.Set(e.i, e.j, m.At(e.i, e.j)+e.v)
	}
	return m, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteDenseCSV writes m one row per CSV record.
func WriteDenseCSV(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	writer := csv.NewWriter(w)
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := range record {
			record[j] = formatValue(m.At(i, j))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "cannot flush matrix CSV")
	}
	return nil
}

// WriteCOOCSV writes the nonzero entries of m as row,col,value records.
// Trailing all-zero rows and columns do not survive a round trip.
func WriteCOOCSV(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	writer := csv.NewWriter(w)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if v == 0 {
				continue
			}
			if err := writer.Write([]string{
				strconv.Itoa(i), strconv.Itoa(j), formatValue(v),
			}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "cannot flush matrix CSV")
	}
	return nil
}

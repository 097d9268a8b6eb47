package matrixio

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"gonum.org/v1/gonum/mat"
)

// DecodeJSON decodes a matrix given as a JSON array of row arrays.
func DecodeJSON(d *jx.Decoder) (*mat.Dense, error) {
	var rows [][]float64
	err := d.Arr(func(d *jx.Decoder) error {
		var row []float64
		if err := d.Arr(func(d *jx.Decoder) error {
			v, err := d.Float64()
			if err != nil {
				return err
			}
			row = append(row, v)
			return nil
		}); err != nil {
			return errors.Wrapf(err, "row %d", len(rows))
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode matrix JSON")
	}
	return FromRows(rows)
}

// ReadJSON reads a matrix given as a JSON array of row arrays.
func ReadJSON(r io.Reader) (*mat.Dense, error) {
	return DecodeJSON(jx.Decode(r, 4096))
}

// EncodeJSON encodes m as a JSON array of row arrays.
func EncodeJSON(e *jx.Encoder, m mat.Matrix) {
	rows, cols := m.Dims()
	e.ArrStart()
	for i := 0; i < rows; i++ {
		e.ArrStart()
		for j := 0; j < cols; j++ {
			e.Float64(m.At(i, j))
		}
		e.ArrEnd()
	}
	e.ArrEnd()
}

// WriteJSON writes m as a JSON array of row arrays, followed by a newline.
func WriteJSON(w io.Writer, m mat.Matrix) error {
	var e jx.Encoder
	EncodeJSON(&e, m)
	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}

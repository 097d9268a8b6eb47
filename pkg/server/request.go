package server

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"gonum.org/v1/gonum/mat"
	"k3l.io/go-sinkhorn/pkg/matrixio"
)

// Request is the body shared by all matrix operations.
// Exactly one of Matrix and MatrixID must be set.
type Request struct {
	Matrix        *mat.Dense
	MatrixID      string
	Iterations    *int
	Tolerance     *float64
	MinIterations *int
	CheckFreq     *int
	AllowNegative bool
}

// DecodeRequest decodes a request object.  Unknown fields are ignored.
func DecodeRequest(d *jx.Decoder) (*Request, error) {
	var req Request
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "matrix":
			m, err := matrixio.DecodeJSON(d)
			if err != nil {
				return err
			}
			req.Matrix = m
		case "matrixId":
			id, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "matrixId")
			}
			req.MatrixID = id
		case "iterations":
			return decodeInt(d, "iterations", &req.Iterations)
		case "minIterations":
			return decodeInt(d, "minIterations", &req.MinIterations)
		case "checkFreq":
			return decodeInt(d, "checkFreq", &req.CheckFreq)
		case "tolerance":
			v, err := d.Float64()
			if err != nil {
				return errors.Wrap(err, "tolerance")
			}
			req.Tolerance = &v
		case "allowNegative":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "allowNegative")
			}
			req.AllowNegative = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, HTTPError{
			Code:  http.StatusBadRequest,
			Inner: errors.Wrap(err, "cannot decode request"),
		}
	}
	return &req, nil
}

func decodeInt(d *jx.Decoder, name string, p **int) error {
	v, err := d.Int()
	if err != nil {
		return errors.Wrap(err, name)
	}
	*p = &v
	return nil
}

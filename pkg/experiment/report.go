package experiment

import (
	"io"

	"github.com/go-faster/jx"
)

// SizeSummary holds per-size means over all trials.
type SizeSummary struct {
	Size             int
	Trials           int
	SinkhornError    float64
	SinkhornDistance float64
	OracleError      float64
	OracleDistance   float64
}

// Report is the outcome of Run.
// Oracle fields are zero unless HasOracle.
type Report struct {
	Config        Config
	HasOracle     bool
	Sizes         []SizeSummary
	SinkhornError float64 // mean of per-size means
	OracleError   float64
}

// Encode encodes r as a JSON object.
func (r *Report) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("config")
	r.Config.encode(e)
	e.FieldStart("oracle")
	e.Bool(r.HasOracle)
	e.FieldStart("sizes")
	e.ArrStart()
	for _, s := range r.Sizes {
		e.ObjStart()
		e.FieldStart("size")
		e.Int(s.Size)
		e.FieldStart("trials")
		e.Int(s.Trials)
		e.FieldStart("sinkhornError")
		e.Float64(s.SinkhornError)
		e.FieldStart("sinkhornDistance")
		e.Float64(s.SinkhornDistance)
		if r.HasOracle {
			e.FieldStart("oracleError")
			e.Float64(s.OracleError)
			e.FieldStart("oracleDistance")
			e.Float64(s.OracleDistance)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("sinkhornError")
	e.Float64(r.SinkhornError)
	if r.HasOracle {
		e.FieldStart("oracleError")
		e.Float64(r.OracleError)
	}
	e.ObjEnd()
}

func (c Config) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("minSize")
	e.Int(c.MinSize)
	e.FieldStart("maxSize")
	e.Int(c.MaxSize)
	e.FieldStart("trials")
	e.Int(c.Trials)
	e.FieldStart("iterations")
	e.Int(c.Iterations)
	e.FieldStart("seed")
	e.UInt64(c.Seed)
	e.FieldStart("low")
	e.Float64(c.Low)
	e.FieldStart("high")
	e.Float64(c.High)
	e.ObjEnd()
}

// WriteJSON writes r as JSON followed by a newline.
func (r *Report) WriteJSON(w io.Writer) error {
	var e jx.Encoder
	e.SetIdent(2)
	r.Encode(&e)
	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}

// Package server implements the Sinkhorn-Knopp HTTP API.
package server

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"k3l.io/go-sinkhorn/pkg/oracle"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

type Core struct {
	Logger            zerolog.Logger
	Solver            oracle.Solver
	DefaultIterations int
	StoredMatrices    NamedMatrices
}

func NewCore(logger zerolog.Logger) *Core {
	return &Core{
		Logger:            logger,
		Solver:            oracle.NewQP(),
		DefaultIterations: sinkhorn.DefaultIterations,
	}
}

// loadMatrix returns the request's inline matrix or a copy of the stored
// matrix it names.
func (core *Core) loadMatrix(req *Request) (*mat.Dense, error) {
	switch {
	case req.Matrix != nil && req.MatrixID != "":
		return nil, HTTPError{
			Code:  http.StatusBadRequest,
			Inner: errors.New("both matrix and matrixId given"),
		}
	case req.Matrix != nil:
		return req.Matrix, nil
	case req.MatrixID != "":
		m, _, ok := core.StoredMatrices.Copy(req.MatrixID)
		if !ok {
			return nil, HTTPError{
				Code:  http.StatusNotFound,
				Inner: errors.Errorf("no stored matrix %#v", req.MatrixID),
			}
		}
		return m, nil
	default:
		return nil, HTTPError{
			Code:  http.StatusBadRequest,
			Inner: errors.New("matrix or matrixId required"),
		}
	}
}

// Normalize runs Sinkhorn-Knopp on the requested matrix.
func (core *Core) Normalize(
	ctx context.Context, req *Request,
) (*sinkhorn.Result, error) {
	m, err := core.loadMatrix(req)
	if err != nil {
		return nil, err
	}
	iterations := core.DefaultIterations
	if req.Iterations != nil {
		iterations = *req.Iterations
	}
	var opts []sinkhorn.NormalizeOpt
	if req.Tolerance != nil {
		opts = append(opts, sinkhorn.WithTolerance(*req.Tolerance))
	}
	if req.MinIterations != nil {
		opts = append(opts, sinkhorn.WithMinIterations(*req.MinIterations))
	}
	if req.CheckFreq != nil {
		opts = append(opts, sinkhorn.WithCheckFreq(*req.CheckFreq))
	}
	if req.AllowNegative {
		opts = append(opts, sinkhorn.WithAllowNegative())
	}
	res, err := sinkhorn.Normalize(ctx, m, iterations, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot normalize")
	}
	return res, nil
}

// Deviation returns the doubly stochastic error of the requested matrix.
func (core *Core) Deviation(ctx context.Context, req *Request) (float64, error) {
	m, err := core.loadMatrix(req)
	if err != nil {
		return 0, err
	}
	e, err := sinkhorn.DoublyStochasticError(m)
	if err != nil {
		return 0, err
	}
	zerolog.Ctx(ctx).Trace().Float64("error", e).Msg("deviation computed")
	return e, nil
}

// ClosestResult is the exact projection of a matrix
// onto the doubly stochastic matrices.
type ClosestResult struct {
	Matrix   *mat.Dense
	Error    float64
	Distance float64
}

// Closest finds the doubly stochastic matrix nearest the requested one.
func (core *Core) Closest(
	ctx context.Context, req *Request,
) (*ClosestResult, error) {
	m, err := core.loadMatrix(req)
	if err != nil {
		return nil, err
	}
	closest, err := core.Solver.Solve(ctx, m)
	if err != nil {
		return nil, errors.Wrap(err, "cannot find closest matrix")
	}
	res := &ClosestResult{Matrix: closest}
	if res.Error, err = sinkhorn.DoublyStochasticError(closest); err != nil {
		return nil, err
	}
	if res.Distance, err = sinkhorn.Distance(m, closest); err != nil {
		return nil, err
	}
	return res, nil
}

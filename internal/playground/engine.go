package playground

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"gonum.org/v1/gonum/mat"
	"k3l.io/go-sinkhorn/pkg/matrixio"
	"k3l.io/go-sinkhorn/pkg/oracle"
	"k3l.io/go-sinkhorn/pkg/server"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

//go:embed templates/*.html
var templates embed.FS

// LoadTemplates installs the playground's HTML templates into gr.
func LoadTemplates(gr *gin.Engine) {
	gr.SetHTMLTemplate(
		template.Must(template.ParseFS(templates, "templates/*.html")))
}

// AddRoutes adds the playground routes.
// The engine serving them must have the templates loaded.
func AddRoutes(routes gin.IRoutes, solver oracle.Solver) {
	routes.GET("/", handle(index))
	routes.POST("/calculate", handle(func(gc *gin.Context) error {
		return calculate(gc, solver)
	}))
}

func handle(f func(gc *gin.Context) error) func(*gin.Context) {
	return func(gc *gin.Context) {
		if err := f(gc); err != nil {
			gc.JSON(server.StatusOf(err), gin.H{"message": err.Error()})
		}
	}
}

func badRequest(err error) error {
	return server.HTTPError{Code: http.StatusBadRequest, Inner: err}
}

func index(gc *gin.Context) error {
	gc.HTML(http.StatusOK, "index.html",
		gin.H{"Iterations": sinkhorn.DefaultIterations})
	return nil
}

func vectorData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}

func calculate(gc *gin.Context, solver oracle.Solver) error {
	matrixFile, err := gc.FormFile("matrixFile")
	if err != nil {
		return badRequest(errors.Wrap(err, "cannot read matrixFile input"))
	}
	iterationsStr := gc.DefaultPostForm("iterations",
		strconv.Itoa(sinkhorn.DefaultIterations))
	iterations, err := strconv.Atoi(iterationsStr)
	if err != nil {
		return badRequest(
			errors.Wrapf(err, "invalid iterations %#v", iterationsStr))
	}
	var opts []sinkhorn.NormalizeOpt
	if toleranceStr := gc.PostForm("tolerance"); toleranceStr != "" {
		tolerance, err := strconv.ParseFloat(toleranceStr, 64)
		if err != nil {
			return badRequest(
				errors.Wrapf(err, "invalid tolerance %#v", toleranceStr))
		}
		opts = append(opts, sinkhorn.WithTolerance(tolerance))
	}
	format, err := matrixio.ParseFormat(gc.PostForm("format"))
	if err != nil {
		return badRequest(err)
	}
	var x *mat.Dense
	{
		f, err := matrixFile.Open()
		if err != nil {
			return badRequest(errors.Wrap(err, "cannot open matrix file"))
		}
		defer func() { _ = f.Close() }()
		x, err = matrixio.ReadMatrix(f, matrixFile.Filename, format)
		if err != nil {
			return badRequest(errors.Wrap(err, "cannot read matrix file"))
		}
	}
	inputError, err := sinkhorn.DoublyStochasticError(x)
	if err != nil {
		return err
	}
	ctx := gc.Request.Context()
	res, err := sinkhorn.Normalize(ctx, x, iterations, opts...)
	if err != nil {
		return errors.Wrap(err, "cannot normalize")
	}
	distance, err := sinkhorn.Distance(x, res.Matrix)
	if err != nil {
		return err
	}
	n, _ := x.Dims()
	result := gin.H{
		"fileName":   matrixFile.Filename,
		"dim":        n,
		"inputError": inputError,
		"iterations": res.Iterations,
		"converged":  res.Converged,
		"error":      res.Error,
		"distance":   distance,
		"matrix":     matrixio.ToRows(res.Matrix),
		"rowScale":   vectorData(res.RowScale),
		"colScale":   vectorData(res.ColScale),
	}
	if compare, _ := strconv.ParseBool(gc.PostForm("compare")); compare {
		closest, err := solver.Solve(ctx, x)
		if err != nil {
			return errors.Wrap(err, "cannot find closest matrix")
		}
		oracleError, err := sinkhorn.DoublyStochasticError(closest)
		if err != nil {
			return err
		}
		oracleDistance, err := sinkhorn.Distance(x, closest)
		if err != nil {
			return err
		}
		result["closest"] = matrixio.ToRows(closest)
		result["closestError"] = oracleError
		result["closestDistance"] = oracleDistance
	}
	gc.JSON(http.StatusOK, result)
	return nil
}
